package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// Stats summarizes one embedding run.
type Stats struct {
	Embedded int `json:"embedded"`
	CacheHit int `json:"cache_hits"`
	Skipped  int `json:"skipped"`
}

// CachedEmbedder wraps a Client with a content-hash blob cache. A record
// whose serialized text has not changed is served from cache rather than
// re-embedded.
type CachedEmbedder struct {
	client Client
	cache  store.BlobCache
	model  string
	logger *slog.Logger
}

// NewCachedEmbedder creates a caching embedder. The model name participates
// in cache keys so a model change invalidates prior vectors.
func NewCachedEmbedder(client Client, cache store.BlobCache, model string, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{client: client, cache: cache, model: model, logger: logger}
}

// CacheKey derives the blob key for a text under a model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// EmbedRecords fills in missing embeddings on the records in place. Records
// that already carry a vector from the same model are skipped; cache hits
// avoid provider calls entirely. Provider calls carry only the cache misses.
func (e *CachedEmbedder) EmbedRecords(ctx context.Context, records []*types.Record) (*Stats, error) {
	stats := &Stats{}

	type pending struct {
		rec  *types.Record
		key  string
		text string
	}
	var misses []pending

	for _, rec := range records {
		if rec.Embedding != nil && rec.Meta != nil && rec.Meta.Model == e.model {
			stats.Skipped++
			continue
		}
		text := SerializeRecord(rec)
		if text == "" {
			stats.Skipped++
			continue
		}
		key := CacheKey(e.model, text)
		if blob, err := e.cache.GetBlob(ctx, key); err == nil {
			vector, derr := decodeVector(blob)
			if derr == nil {
				e.apply(rec, vector)
				stats.CacheHit++
				continue
			}
			e.logger.Warn("discarding corrupt cached vector", "key", key, "error", derr)
		} else if !store.IsNotFound(err) {
			return nil, fmt.Errorf("embedder: read cache: %w", err)
		}
		misses = append(misses, pending{rec: rec, key: key, text: text})
	}

	if len(misses) > 0 {
		texts := make([]string, len(misses))
		for i, p := range misses {
			texts[i] = p.text
		}
		vectors, err := e.client.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(misses) {
			return nil, fmt.Errorf("embedder: expected %d vectors, got %d", len(misses), len(vectors))
		}
		for i, p := range misses {
			e.apply(p.rec, vectors[i])
			if err := e.cache.PutBlob(ctx, p.key, encodeVector(vectors[i])); err != nil {
				// Cache writes are best effort.
				e.logger.Warn("failed to cache vector", "key", p.key, "error", err)
			}
			stats.Embedded++
		}
	}

	e.logger.Info("embedding pass complete",
		"records", len(records), "embedded", stats.Embedded,
		"cache_hits", stats.CacheHit, "skipped", stats.Skipped)
	return stats, nil
}

// Close releases the wrapped client.
func (e *CachedEmbedder) Close() error { return e.client.Close() }

func (e *CachedEmbedder) apply(rec *types.Record, vector []float32) {
	rec.Embedding = vector
	rec.Meta = &types.EmbeddingMeta{
		Model:     e.model,
		Dimension: len(vector),
		CreatedAt: time.Now().UTC(),
	}
}

// encodeVector packs a vector as little-endian float32 bits.
func encodeVector(vector []float32) []byte {
	out := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return out, nil
}
