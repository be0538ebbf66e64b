package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// Strategy produces candidate pairs from a record set.
type Strategy interface {
	// Name identifies the strategy in pair provenance, e.g. "exact:email".
	Name() string

	// Candidates returns the pairs the strategy surfaces. Pairs may repeat
	// across strategies; the engine deduplicates.
	Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error)
}

// Stats summarizes one blocking run.
type Stats struct {
	PairsByStrategy map[string]int `json:"pairs_by_strategy"`
	SkippedBlocks   int            `json:"skipped_blocks"`
	RawPairs        int            `json:"raw_pairs"`
	UniquePairs     int            `json:"unique_pairs"`

	// TotalPossible is the full comparison space n*(n-1)/2 for n records.
	TotalPossible int64 `json:"total_possible"`

	// ReductionRatio is the fraction of the comparison space blocking pruned
	// away: 1 - unique/total. Higher is better; 0 means no pruning.
	ReductionRatio float64 `json:"reduction_ratio"`
}

// Engine runs a strategy set and merges the results.
type Engine struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewEngine builds an engine from a blocking configuration. The store is
// needed by the search-backed strategies; key-based strategies ignore it.
func NewEngine(cfg config.BlockingConfig, searcher store.Searcher, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	for _, sc := range cfg.Strategies {
		strategy, err := buildStrategy(sc, cfg.MaxBlockSize, searcher, logger)
		if err != nil {
			return nil, err
		}
		e.strategies = append(e.strategies, strategy)
	}
	return e, nil
}

func buildStrategy(sc config.StrategyConfig, maxBlockSize int, searcher store.Searcher, logger *slog.Logger) (Strategy, error) {
	switch sc.Kind {
	case config.StrategyComposite:
		return &CompositeKeyStrategy{Fields: sc.Fields, MaxBlockSize: maxBlockSize, logger: logger}, nil
	case config.StrategyExact:
		return &ExactFieldStrategy{Field: sc.Fields[0], MaxBlockSize: maxBlockSize, logger: logger}, nil
	case config.StrategyPhonetic:
		return &PhoneticStrategy{Field: sc.Fields[0], MaxBlockSize: maxBlockSize, logger: logger}, nil
	case config.StrategyText:
		return &TextStrategy{Field: sc.Fields[0], TopK: sc.TopK, MinScore: sc.MinScore, searcher: searcher}, nil
	case config.StrategyVector:
		return &VectorStrategy{TopK: sc.TopK, MinScore: sc.MinScore, searcher: searcher}, nil
	case config.StrategyLSH:
		return NewLSHStrategy(sc.Tables, sc.Hyperplanes, sc.Dimensions, sc.Seed, maxBlockSize, logger)
	default:
		return nil, fmt.Errorf("blocking: unknown strategy kind %q", sc.Kind)
	}
}

// GenerateCandidates runs every strategy and returns the deduplicated union.
// A pair surfaced by several strategies appears once, with all producing
// strategies in its provenance. Output order is deterministic.
func (e *Engine) GenerateCandidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, *Stats, error) {
	stats := &Stats{PairsByStrategy: make(map[string]int)}
	merged := make(map[string]*types.CandidatePair)

	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pairs, err := strategy.Candidates(ctx, records)
		if err != nil {
			return nil, nil, fmt.Errorf("blocking: strategy %s: %w", strategy.Name(), err)
		}
		if counter, ok := strategy.(interface{ SkippedBlocks() int }); ok {
			stats.SkippedBlocks += counter.SkippedBlocks()
		}
		stats.PairsByStrategy[strategy.Name()] = len(pairs)
		stats.RawPairs += len(pairs)
		for i := range pairs {
			p := pairs[i]
			if existing, ok := merged[p.Key()]; ok {
				existing.MergeStrategy(p.Strategies...)
				continue
			}
			merged[p.Key()] = &p
		}
		e.logger.Info("blocking strategy complete", "strategy", strategy.Name(), "pairs", len(pairs))
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.CandidatePair, 0, len(merged))
	for _, k := range keys {
		out = append(out, *merged[k])
	}
	stats.UniquePairs = len(out)
	n := int64(len(records))
	stats.TotalPossible = n * (n - 1) / 2
	if stats.TotalPossible > 0 {
		stats.ReductionRatio = 1 - float64(stats.UniquePairs)/float64(stats.TotalPossible)
	}
	e.logger.Info("blocking complete",
		"strategies", len(e.strategies), "raw_pairs", stats.RawPairs,
		"unique_pairs", stats.UniquePairs, "reduction_ratio", stats.ReductionRatio)
	return out, stats, nil
}

// blockPairs expands a block of record ids into all unordered pairs.
func blockPairs(ids []string, strategy, blockKey string) []types.CandidatePair {
	pairs := make([]types.CandidatePair, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			p, err := types.NewCandidatePair(ids[i], ids[j], strategy, blockKey)
			if err != nil {
				continue
			}
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// normalizeKey lowercases and collapses whitespace in a block key component.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
