package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/types"
)

const (
	retryAttempts    = 3
	retryBaseBackoff = 100 * time.Millisecond
)

// RetryingStore wraps a RecordStore with bounded retries and a circuit
// breaker. Only errors classified as transient are retried; the breaker opens
// when the backend keeps failing so a flaky database degrades the run quickly
// instead of hanging it.
type RetryingStore struct {
	inner  RecordStore
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

var _ RecordStore = (*RetryingStore)(nil)

// NewRetryingStore wraps inner. A nil logger falls back to slog.Default.
func NewRetryingStore(inner RecordStore, cfg config.CircuitBreakerConfig, logger *slog.Logger) *RetryingStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RetryingStore{inner: inner, logger: logger}
	if cfg.Enabled {
		st := gobreaker.Settings{
			Name:        "record-store",
			MaxRequests: cfg.MaxRequests,
			Interval:    time.Duration(cfg.Interval) * time.Second,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					logger.Error("circuit breaker opened", "name", name, "from", from.String())
				}
			},
			// Not-found and invalid-input errors are verdicts, not outages.
			IsSuccessful: func(err error) bool {
				return err == nil || !Retryable(err)
			},
		}
		s.cb = gobreaker.NewCircuitBreaker(st)
	}
	return s
}

// do runs fn with retries and the breaker. Non-transient errors return
// immediately.
func (s *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	run := fn
	if s.cb != nil {
		run = func() error {
			_, err := s.cb.Execute(func() (interface{}, error) { return nil, fn() })
			return err
		}
	}

	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBaseBackoff << (attempt - 1)
			s.logger.Warn("retrying store operation", "op", op, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err = run()
		if err == nil || !Retryable(err) {
			return err
		}
	}
	return err
}

func (s *RetryingStore) GetRecord(ctx context.Context, collection, id string) (*types.Record, error) {
	var rec *types.Record
	err := s.do(ctx, "GetRecord", func() error {
		var err error
		rec, err = s.inner.GetRecord(ctx, collection, id)
		return err
	})
	return rec, err
}

func (s *RetryingStore) GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error) {
	var recs []*types.Record
	err := s.do(ctx, "GetRecords", func() error {
		var err error
		recs, err = s.inner.GetRecords(ctx, collection, ids)
		return err
	})
	return recs, err
}

func (s *RetryingStore) ListIDs(ctx context.Context, collection string) ([]string, error) {
	var ids []string
	err := s.do(ctx, "ListIDs", func() error {
		var err error
		ids, err = s.inner.ListIDs(ctx, collection)
		return err
	})
	return ids, err
}

func (s *RetryingStore) UpsertRecords(ctx context.Context, records []*types.Record) error {
	return s.do(ctx, "UpsertRecords", func() error { return s.inner.UpsertRecords(ctx, records) })
}

func (s *RetryingStore) UpsertEdges(ctx context.Context, edges []*types.SimilarityEdge) error {
	return s.do(ctx, "UpsertEdges", func() error { return s.inner.UpsertEdges(ctx, edges) })
}

func (s *RetryingStore) CountEdges(ctx context.Context, relation string) (int64, error) {
	var n int64
	err := s.do(ctx, "CountEdges", func() error {
		var err error
		n, err = s.inner.CountEdges(ctx, relation)
		return err
	})
	return n, err
}

func (s *RetryingStore) GetEdgesByRelation(ctx context.Context, relation string, limit int64) ([]*types.SimilarityEdge, error) {
	var edges []*types.SimilarityEdge
	err := s.do(ctx, "GetEdgesByRelation", func() error {
		var err error
		edges, err = s.inner.GetEdgesByRelation(ctx, relation, limit)
		return err
	})
	return edges, err
}

func (s *RetryingStore) SearchText(ctx context.Context, collection, field, query string, topK int) ([]ScoredID, error) {
	var hits []ScoredID
	err := s.do(ctx, "SearchText", func() error {
		var err error
		hits, err = s.inner.SearchText(ctx, collection, field, query, topK)
		return err
	})
	return hits, err
}

func (s *RetryingStore) SearchVector(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]ScoredID, error) {
	var hits []ScoredID
	err := s.do(ctx, "SearchVector", func() error {
		var err error
		hits, err = s.inner.SearchVector(ctx, collection, vector, topK, minScore)
		return err
	})
	return hits, err
}

func (s *RetryingStore) UpsertRelationships(ctx context.Context, edges []*types.RelationshipEdge) error {
	return s.do(ctx, "UpsertRelationships", func() error { return s.inner.UpsertRelationships(ctx, edges) })
}

func (s *RetryingStore) GetRelationships(ctx context.Context, relation string) ([]*types.RelationshipEdge, error) {
	var edges []*types.RelationshipEdge
	err := s.do(ctx, "GetRelationships", func() error {
		var err error
		edges, err = s.inner.GetRelationships(ctx, relation)
		return err
	})
	return edges, err
}

func (s *RetryingStore) ReplaceRelationships(ctx context.Context, relation string, edges []*types.RelationshipEdge) error {
	return s.do(ctx, "ReplaceRelationships", func() error { return s.inner.ReplaceRelationships(ctx, relation, edges) })
}

func (s *RetryingStore) UpsertClusters(ctx context.Context, clusters []*types.Cluster) error {
	return s.do(ctx, "UpsertClusters", func() error { return s.inner.UpsertClusters(ctx, clusters) })
}

func (s *RetryingStore) ListClusters(ctx context.Context) ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.do(ctx, "ListClusters", func() error {
		var err error
		out, err = s.inner.ListClusters(ctx)
		return err
	})
	return out, err
}

func (s *RetryingStore) UpsertGoldenRecords(ctx context.Context, records []*types.GoldenRecord) error {
	return s.do(ctx, "UpsertGoldenRecords", func() error { return s.inner.UpsertGoldenRecords(ctx, records) })
}

func (s *RetryingStore) ListGoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error) {
	var out []*types.GoldenRecord
	err := s.do(ctx, "ListGoldenRecords", func() error {
		var err error
		out, err = s.inner.ListGoldenRecords(ctx)
		return err
	})
	return out, err
}

func (s *RetryingStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "GetBlob", func() error {
		var err error
		data, err = s.inner.GetBlob(ctx, key)
		return err
	})
	return data, err
}

func (s *RetryingStore) PutBlob(ctx context.Context, key string, data []byte) error {
	return s.do(ctx, "PutBlob", func() error { return s.inner.PutBlob(ctx, key, data) })
}

func (s *RetryingStore) Close() error { return s.inner.Close() }
