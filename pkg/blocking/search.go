package blocking

import (
	"context"

	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

const defaultTopK = 10

// TextStrategy pairs each record with the store's best text matches for one
// field. Queries run concurrently through a worker pool; each query is a
// single store round trip.
type TextStrategy struct {
	Field    string
	TopK     int
	MinScore float64

	searcher store.Searcher
}

func (s *TextStrategy) Name() string { return "text:" + s.Field }

func (s *TextStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	topK := s.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	pool := utils.NewWorkerPool(utils.WorkerLimit(), func(ctx context.Context, rec *types.Record) ([]types.CandidatePair, error) {
		query := rec.Text(s.Field)
		if query == "" {
			return nil, nil
		}
		// topK+1 because the record is usually its own best match.
		hits, err := s.searcher.SearchText(ctx, rec.Collection, s.Field, query, topK+1)
		if err != nil {
			return nil, err
		}
		return hitsToPairs(rec.ID, hits, s.MinScore, s.Name()), nil
	})

	results, errs := pool.ProcessItems(ctx, records)
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var out []types.CandidatePair
	for _, pairs := range results {
		out = append(out, pairs...)
	}
	return out, nil
}

// VectorStrategy pairs each record with its nearest embedding neighbors.
type VectorStrategy struct {
	TopK     int
	MinScore float64

	searcher store.Searcher
}

func (s *VectorStrategy) Name() string { return "vector:knn" }

func (s *VectorStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	topK := s.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	pool := utils.NewWorkerPool(utils.WorkerLimit(), func(ctx context.Context, rec *types.Record) ([]types.CandidatePair, error) {
		if len(rec.Embedding) == 0 {
			return nil, nil
		}
		hits, err := s.searcher.SearchVector(ctx, rec.Collection, rec.Embedding, topK+1, s.MinScore)
		if err != nil {
			return nil, err
		}
		return hitsToPairs(rec.ID, hits, s.MinScore, s.Name()), nil
	})

	results, errs := pool.ProcessItems(ctx, records)
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var out []types.CandidatePair
	for _, pairs := range results {
		out = append(out, pairs...)
	}
	return out, nil
}

func hitsToPairs(selfID string, hits []store.ScoredID, minScore float64, strategy string) []types.CandidatePair {
	pairs := make([]types.CandidatePair, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == selfID || hit.Score < minScore {
			continue
		}
		p, err := types.NewCandidatePair(selfID, hit.ID, strategy, "")
		if err != nil {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}
