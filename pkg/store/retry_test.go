package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/types"
)

// flakyStore fails the first failures calls to GetRecords with the given
// error kind, then delegates.
type flakyStore struct {
	*MemoryStore
	failures int
	kind     ErrorKind
	calls    int
}

func (f *flakyStore) GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error) {
	f.calls++
	if f.calls <= f.failures {
		kind := f.kind
		if kind == "" {
			kind = KindUnavailable
		}
		return nil, NewError(kind, "GetRecords", collection, errors.New("connection reset"))
	}
	return f.MemoryStore.GetRecords(ctx, collection, ids)
}

func TestRetryingStoreRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	seedRecords(t, inner.MemoryStore, 3)

	s := NewRetryingStore(inner, config.CircuitBreakerConfig{}, nil)
	recs, err := s.GetRecords(context.Background(), "people", []string{"rec-000"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStoreRecoversFromInternalFault(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2, kind: KindInternal}
	seedRecords(t, inner.MemoryStore, 3)

	s := NewRetryingStore(inner, config.CircuitBreakerConfig{}, nil)
	recs, err := s.GetRecords(context.Background(), "people", []string{"rec-000"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 3, inner.calls, "internal backend faults are retried")
}

func TestRetryingStoreGivesUpAfterAttempts(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10}
	s := NewRetryingStore(inner, config.CircuitBreakerConfig{}, nil)

	_, err := s.GetRecords(context.Background(), "people", []string{"x"})
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Equal(t, retryAttempts, inner.calls)
}

func TestRetryingStoreDoesNotRetryNotFound(t *testing.T) {
	inner := NewMemoryStore()
	s := NewRetryingStore(inner, config.CircuitBreakerConfig{}, nil)

	_, err := s.GetRecord(context.Background(), "people", "ghost")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int64(1), inner.Trips("GetRecord"))
}
