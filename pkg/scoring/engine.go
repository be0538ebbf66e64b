package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/similarity"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// EmbeddingComparator is the reserved comparator name that scores the
// records' embedding vectors instead of field text.
const EmbeddingComparator = "embedding"

// Stats summarizes one scoring run.
type Stats struct {
	Scored         int                    `json:"scored"`
	Filtered       int                    `json:"filtered"`
	MissingRecords int                    `json:"missing_records"`
	Decisions      map[types.Decision]int `json:"decisions"`
}

// Engine scores candidate pairs against a weight table.
type Engine struct {
	reader   store.RecordReader
	registry *similarity.Registry
	table    similarity.WeightTable
	cfg      config.ScoringConfig

	filters      []PairFilter
	transformers []TextTransformer
	adjusters    []ScoreAdjuster

	logger *slog.Logger
}

// NewEngine validates the weight table and wires the configured hooks. Hook
// order is fixed: the type filter runs before comparison, the acronym
// expander rewrites text during comparison, and the context resolver adjusts
// the aggregated outcome.
func NewEngine(reader store.RecordReader, pipeline *config.PipelineConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pipeline.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	registry := similarity.NewRegistry()
	for field, fw := range pipeline.Weights.Fields {
		if fw.Comparator == "" || fw.Comparator == EmbeddingComparator {
			continue
		}
		if _, ok := registry.Get(fw.Comparator); !ok {
			return nil, fmt.Errorf("scoring: field %q: unknown comparator %q", field, fw.Comparator)
		}
	}

	e := &Engine{
		reader:   reader,
		registry: registry,
		table:    pipeline.Weights,
		cfg:      pipeline.Scoring,
		logger:   logger,
	}
	hooks := pipeline.Scoring.Hooks
	if hooks.TypeFilter.Enabled {
		e.filters = append(e.filters, &TypeFilter{Field: hooks.TypeFilter.Field})
	}
	if hooks.AcronymExpander.Enabled {
		e.transformers = append(e.transformers, &AcronymExpander{Fields: hooks.AcronymExpander.Fields})
	}
	if hooks.ContextResolver.Enabled {
		e.adjusters = append(e.adjusters, &ContextResolver{
			Field:  hooks.ContextResolver.Field,
			Weight: hooks.ContextResolver.Weight,
		})
	}
	return e, nil
}

// ScorePairs scores every candidate pair. Pairs are batched; each batch costs
// one bulk record fetch, then comparison fans out across workers. Pairs whose
// records are missing from the store are counted and skipped, never fatal.
func (e *Engine) ScorePairs(ctx context.Context, collection string, pairs []types.CandidatePair) ([]types.ScoredPair, *Stats, error) {
	stats := &Stats{Decisions: make(map[types.Decision]int)}
	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = utils.WorkerLimit()
	}

	var out []types.ScoredPair
	for _, batch := range utils.Chunk(pairs, batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		ids := make([]string, 0, len(batch)*2)
		seen := make(map[string]struct{}, len(batch)*2)
		for _, p := range batch {
			for _, id := range []string{p.A, p.B} {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		records, err := e.reader.GetRecords(ctx, collection, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("scoring: fetch batch: %w", err)
		}
		byID := make(map[string]*types.Record, len(records))
		for _, rec := range records {
			byID[rec.ID] = rec
		}

		pool := utils.NewWorkerPool(workers, func(ctx context.Context, p types.CandidatePair) (*types.ScoredPair, error) {
			a, okA := byID[p.A]
			b, okB := byID[p.B]
			if !okA || !okB {
				return nil, nil
			}
			return e.scorePair(p, a, b), nil
		})
		scored, errs := pool.ProcessItems(ctx, batch)
		for _, err := range errs {
			if err != nil {
				return nil, nil, fmt.Errorf("scoring: %w", err)
			}
		}
		for _, sp := range scored {
			if sp == nil {
				stats.MissingRecords++
				continue
			}
			if sp.Decision == "" {
				stats.Filtered++
				continue
			}
			stats.Scored++
			stats.Decisions[sp.Decision]++
			out = append(out, *sp)
		}
	}

	e.logger.Info("scoring complete",
		"pairs", len(pairs), "scored", stats.Scored,
		"filtered", stats.Filtered, "missing", stats.MissingRecords)
	return out, stats, nil
}

// scorePair compares one pair. A nil decision marks a filtered pair.
func (e *Engine) scorePair(p types.CandidatePair, a, b *types.Record) *types.ScoredPair {
	for _, f := range e.filters {
		if !f.Keep(a, b) {
			return &types.ScoredPair{Pair: p}
		}
	}

	sims := make(types.FieldSimilarities, len(e.table.Fields))
	for _, field := range e.table.FieldNames() {
		fw := e.table.Fields[field]
		if fw.Comparator == EmbeddingComparator {
			sims[field] = similarity.CosineVectors(a.Embedding, b.Embedding)
			continue
		}
		name := fw.Comparator
		if name == "" {
			name = "exact"
		}
		comparator, _ := e.registry.Get(name)
		sims[field] = comparator.Compare(e.text(a, field), e.text(b, field))
	}

	out := e.table.Aggregate(sims)
	for _, adj := range e.adjusters {
		adj.Adjust(a, b, &out)
	}
	return &types.ScoredPair{
		Pair:            p,
		RawScore:        out.RawScore,
		NormalizedScore: out.NormalizedScore,
		Decision:        out.Decision,
		Confidence:      out.Confidence,
		Similarities:    sims,
	}
}

func (e *Engine) text(rec *types.Record, field string) string {
	text := rec.Text(field)
	for _, tr := range e.transformers {
		text = tr.Transform(field, text)
	}
	return text
}
