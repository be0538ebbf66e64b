package golden

import (
	"log/slog"
	"sort"

	"github.com/tributary-data/coalesce/pkg/types"
)

// RemapStats summarizes one relationship sweep.
type RemapStats struct {
	Remapped  int `json:"remapped"`
	Collapsed int `json:"collapsed"`
	SelfLoops int `json:"self_loops"`
}

// RemapRelationships rewrites relationship endpoints onto golden ids. Edges
// whose endpoints land on the same golden record are dropped as self loops;
// edges that collapse onto the same (source, target, relation) merge, with
// the original endpoint pairs concatenated into provenance. Untouched
// endpoints pass through unchanged.
func RemapRelationships(edges []*types.RelationshipEdge, goldens []*types.GoldenRecord, logger *slog.Logger) ([]*types.RelationshipEdge, *RemapStats) {
	if logger == nil {
		logger = slog.Default()
	}
	stats := &RemapStats{}

	goldenOf := make(map[string]string)
	for _, g := range goldens {
		for _, member := range g.MemberIDs {
			goldenOf[member] = g.ID
		}
	}

	merged := make(map[string]*types.RelationshipEdge)
	var order []string
	for _, edge := range edges {
		src, tgt := edge.SourceID, edge.TargetID
		touched := false
		if mapped, ok := goldenOf[src]; ok {
			src = mapped
			touched = true
		}
		if mapped, ok := goldenOf[tgt]; ok {
			tgt = mapped
			touched = true
		}
		if src == tgt {
			stats.SelfLoops++
			continue
		}
		if touched {
			stats.Remapped++
		}

		key := types.EdgeKey(src, tgt, edge.Relation)
		provenance := append([]types.EdgeProvenance(nil), edge.Provenance...)
		if touched {
			provenance = append(provenance, types.EdgeProvenance{SourceID: edge.SourceID, TargetID: edge.TargetID})
		}

		if existing, ok := merged[key]; ok {
			existing.Provenance = append(existing.Provenance, provenance...)
			stats.Collapsed++
			continue
		}
		merged[key] = &types.RelationshipEdge{
			Key:        key,
			SourceID:   src,
			TargetID:   tgt,
			Relation:   edge.Relation,
			Provenance: provenance,
		}
		order = append(order, key)
	}

	sort.Strings(order)
	out := make([]*types.RelationshipEdge, 0, len(merged))
	for _, key := range order {
		out = append(out, merged[key])
	}

	logger.Info("relationship sweep complete",
		"edges", len(edges), "kept", len(out),
		"remapped", stats.Remapped, "collapsed", stats.Collapsed, "self_loops", stats.SelfLoops)
	return out, stats
}
