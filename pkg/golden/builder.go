// Package golden fuses each cluster's member records into one golden record.
// Every fused field carries provenance naming the member it came from, the
// rule that selected it, and the competing values it beat.
package golden

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// fetchChunk bounds how many member ids one bulk fetch carries.
const fetchChunk = 512

// Stats summarizes one fusion run.
type Stats struct {
	GoldenRecords  int `json:"golden_records"`
	MembersFused   int `json:"members_fused"`
	MissingMembers int `json:"missing_members"`
}

// Builder fuses clusters into golden records.
type Builder struct {
	reader store.RecordReader
	cfg    config.GoldenConfig
	logger *slog.Logger
}

// NewBuilder creates a golden-record builder.
func NewBuilder(reader store.RecordReader, cfg config.GoldenConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultRule == "" {
		cfg.DefaultRule = string(types.RuleCompleteness)
	}
	if cfg.SourceField == "" {
		cfg.SourceField = "source"
	}
	return &Builder{reader: reader, cfg: cfg, logger: logger}
}

// GoldenID derives the deterministic golden-record id for a cluster.
func GoldenID(clusterID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("golden:"+clusterID)).String()
}

// BuildGoldenRecords fuses every cluster. Member records are fetched in
// chunked bulk reads covering many clusters per round trip. Clusters whose
// members are missing from the store are skipped with a warning.
func (b *Builder) BuildGoldenRecords(ctx context.Context, collection string, clusters []*types.Cluster) ([]*types.GoldenRecord, *Stats, error) {
	stats := &Stats{}

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range clusters {
		for _, id := range c.MemberIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	byID := make(map[string]*types.Record, len(ids))
	for start := 0; start < len(ids); start += fetchChunk {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := start + fetchChunk
		if end > len(ids) {
			end = len(ids)
		}
		records, err := b.reader.GetRecords(ctx, collection, ids[start:end])
		if err != nil {
			return nil, nil, fmt.Errorf("golden: fetch members: %w", err)
		}
		for _, rec := range records {
			byID[rec.ID] = rec
		}
	}

	out := make([]*types.GoldenRecord, 0, len(clusters))
	for _, c := range clusters {
		members := make([]*types.Record, 0, len(c.MemberIDs))
		for _, id := range c.MemberIDs {
			rec, ok := byID[id]
			if !ok {
				stats.MissingMembers++
				continue
			}
			members = append(members, rec)
		}
		if len(members) < 2 {
			b.logger.Warn("skipping cluster with missing members", "cluster", c.ID, "present", len(members))
			continue
		}
		golden := b.fuse(c, members)
		if err := golden.Validate(); err != nil {
			return nil, nil, fmt.Errorf("golden: cluster %s: %w", c.ID, err)
		}
		out = append(out, golden)
		stats.GoldenRecords++
		stats.MembersFused += len(members)
	}

	b.logger.Info("fusion complete",
		"clusters", len(clusters), "golden_records", stats.GoldenRecords,
		"missing_members", stats.MissingMembers)
	return out, stats, nil
}

// fuse merges one cluster's members field by field.
func (b *Builder) fuse(c *types.Cluster, members []*types.Record) *types.GoldenRecord {
	// Deterministic member order: fusion must not depend on fetch order.
	sorted := append([]*types.Record(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	paths := b.unionPaths(sorted)
	fields := make(map[string]types.FusedField, len(paths))
	populated := 0
	for _, path := range paths {
		rule := types.FusionRule(b.cfg.DefaultRule)
		if r, ok := b.cfg.FieldRules[path]; ok {
			rule = types.FusionRule(r)
		}
		fused, ok := b.fuseField(path, rule, sorted, paths)
		if !ok {
			continue
		}
		fields[path] = fused
		populated++
	}

	quality := 0.0
	if len(paths) > 0 {
		quality = float64(populated) / float64(len(paths))
	}

	golden := &types.GoldenRecord{
		ID:               GoldenID(c.ID),
		ClusterID:        c.ID,
		MemberIDs:        c.MemberIDs,
		Fields:           fields,
		DataQualityScore: quality,
		ConfidenceScore:  c.AvgConfidence,
		CreatedAt:        time.Now().UTC(),
	}
	if b.cfg.TypeField != "" {
		golden.EntityType = majorityText(sorted, b.cfg.TypeField)
	}
	return golden
}

func (b *Builder) unionPaths(members []*types.Record) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, rec := range members {
		for _, p := range rec.FieldPaths() {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

// candidate is one member's value for a field under fusion.
type candidate struct {
	rec  *types.Record
	text string
}

// fuseField selects the winning value for one path. Members without a value
// for the path never win; when nobody has one the field is omitted.
func (b *Builder) fuseField(path string, rule types.FusionRule, members []*types.Record, allPaths []string) (types.FusedField, bool) {
	candidates := make([]candidate, 0, len(members))
	for _, rec := range members {
		if text := rec.Text(path); text != "" {
			candidates = append(candidates, candidate{rec: rec, text: text})
		}
	}
	if len(candidates) == 0 {
		return types.FusedField{}, false
	}

	var winner candidate
	switch rule {
	case types.RuleMostFrequent:
		winner = b.mostFrequent(candidates)
	case types.RuleLongest:
		winner = candidates[0]
		for _, c := range candidates[1:] {
			if len(c.text) > len(winner.text) {
				winner = c
			}
		}
	case types.RuleSourcePriority:
		winner = b.bySourcePriority(candidates)
	default: // completeness
		winner = candidates[0]
		best := winner.rec.Completeness(allPaths)
		for _, c := range candidates[1:] {
			if score := c.rec.Completeness(allPaths); score > best {
				best = score
				winner = c
			}
		}
	}

	alternatives := make([]string, 0)
	altSeen := map[string]struct{}{winner.text: {}}
	for _, c := range candidates {
		if _, ok := altSeen[c.text]; ok {
			continue
		}
		altSeen[c.text] = struct{}{}
		alternatives = append(alternatives, c.text)
	}
	sort.Strings(alternatives)

	return types.FusedField{
		Value: winner.rec.Get(path),
		Provenance: types.Provenance{
			SourceID:     winner.rec.ID,
			Rule:         rule,
			Alternatives: alternatives,
		},
	}, true
}

// mostFrequent picks the majority text. Ties break by recency when a recency
// field is configured, then by smallest record id; candidates arrive sorted
// by id, so the first holder of the winning value is the tie-break winner.
func (b *Builder) mostFrequent(candidates []candidate) candidate {
	counts := make(map[string]int)
	for _, c := range candidates {
		counts[c.text]++
	}

	recency := func(rec *types.Record) string {
		if b.cfg.RecencyField == "" {
			return ""
		}
		return rec.Text(b.cfg.RecencyField)
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case counts[c.text] > counts[winner.text]:
			winner = c
		case counts[c.text] == counts[winner.text] && c.text != winner.text:
			// RFC 3339 timestamps compare lexicographically.
			if recency(c.rec) > recency(winner.rec) {
				winner = c
			}
		}
	}
	return winner
}

func (b *Builder) bySourcePriority(candidates []candidate) candidate {
	rank := make(map[string]int, len(b.cfg.SourcePriority))
	for i, src := range b.cfg.SourcePriority {
		rank[src] = i
	}
	rankOf := func(rec *types.Record) int {
		if r, ok := rank[rec.Text(b.cfg.SourceField)]; ok {
			return r
		}
		return len(rank)
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if rankOf(c.rec) < rankOf(winner.rec) {
			winner = c
		}
	}
	return winner
}

func majorityText(members []*types.Record, field string) string {
	counts := make(map[string]int)
	for _, rec := range members {
		if text := rec.Text(field); text != "" {
			counts[text]++
		}
	}
	best := ""
	for text, n := range counts {
		if n > counts[best] || (n == counts[best] && (best == "" || text < best)) {
			best = text
		}
	}
	return best
}
