package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// BM25 constants for the in-memory text index.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var errMissing = errors.New("key not found")

// MemoryStore is a thread-safe in-memory RecordStore. Tests use it both as a
// fixture and as an N+1 guard: every public call increments a per-operation
// round-trip counter, so a test can assert that scoring a thousand pairs cost
// a handful of bulk reads rather than thousands of single ones.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]map[string]*types.Record // collection -> id -> record
	edges     map[string]*types.SimilarityEdge    // edge key -> edge
	relations map[string]*types.RelationshipEdge  // edge key -> domain edge
	clusters  map[string]*types.Cluster
	goldens   map[string]*types.GoldenRecord
	blobs     map[string][]byte
	trips     map[string]int64
}

var _ RecordStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]map[string]*types.Record),
		edges:     make(map[string]*types.SimilarityEdge),
		relations: make(map[string]*types.RelationshipEdge),
		clusters:  make(map[string]*types.Cluster),
		goldens:   make(map[string]*types.GoldenRecord),
		blobs:     make(map[string][]byte),
		trips:     make(map[string]int64),
	}
}

// Trips returns how many round trips the named operation has made.
func (s *MemoryStore) Trips(op string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trips[op]
}

// TotalTrips returns the total number of store round trips.
func (s *MemoryStore) TotalTrips() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, n := range s.trips {
		total += n
	}
	return total
}

// ResetTrips zeroes the round-trip counters, so a test can seed fixtures
// first and count only the operations under test.
func (s *MemoryStore) ResetTrips() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips = make(map[string]int64)
}

func (s *MemoryStore) count(op string) { s.trips[op]++ }

func (s *MemoryStore) GetRecord(ctx context.Context, collection, id string) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetRecord")
	rec, ok := s.records[collection][id]
	if !ok {
		return nil, NewError(KindNotFound, "GetRecord", collection+"/"+id, errMissing)
	}
	return rec, nil
}

func (s *MemoryStore) GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetRecords")
	out := make([]*types.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[collection][id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListIDs(ctx context.Context, collection string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListIDs")
	ids := make([]string, 0, len(s.records[collection]))
	for id := range s.records[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) UpsertRecords(ctx context.Context, records []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpsertRecords")
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return NewError(KindInvalid, "UpsertRecords", rec.ID, err)
		}
		coll, ok := s.records[rec.Collection]
		if !ok {
			coll = make(map[string]*types.Record)
			s.records[rec.Collection] = coll
		}
		coll[rec.ID] = rec
	}
	return nil
}

func (s *MemoryStore) UpsertEdges(ctx context.Context, edges []*types.SimilarityEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpsertEdges")
	for _, e := range edges {
		if existing, ok := s.edges[e.Key]; ok {
			existing.Weight = e.Weight
			existing.Confidence = e.Confidence
			existing.Methods = utils.DedupeStrings(append(existing.Methods, e.Methods...))
			continue
		}
		s.edges[e.Key] = e
	}
	return nil
}

func (s *MemoryStore) UpsertRelationships(ctx context.Context, edges []*types.RelationshipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpsertRelationships")
	for _, e := range edges {
		s.relations[e.Key] = e
	}
	return nil
}

func (s *MemoryStore) GetRelationships(ctx context.Context, relation string) ([]*types.RelationshipEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetRelationships")
	out := make([]*types.RelationshipEdge, 0)
	for _, e := range s.relations {
		if e.Relation == relation {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) ReplaceRelationships(ctx context.Context, relation string, edges []*types.RelationshipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ReplaceRelationships")
	for key, e := range s.relations {
		if e.Relation == relation {
			delete(s.relations, key)
		}
	}
	for _, e := range edges {
		s.relations[e.Key] = e
	}
	return nil
}

func (s *MemoryStore) CountEdges(ctx context.Context, relation string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("CountEdges")
	var n int64
	for _, e := range s.edges {
		if e.Relation == relation {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetEdgesByRelation(ctx context.Context, relation string, limit int64) ([]*types.SimilarityEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetEdgesByRelation")
	out := make([]*types.SimilarityEdge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Relation != relation {
			continue
		}
		out = append(out, e)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) SearchText(ctx context.Context, collection, field, query string, topK int) ([]ScoredID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("SearchText")

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	type doc struct {
		id     string
		tokens []string
	}
	docs := make([]doc, 0, len(s.records[collection]))
	var totalLen float64
	docFreq := make(map[string]int)
	for id, rec := range s.records[collection] {
		tokens := tokenize(rec.Text(field))
		docs = append(docs, doc{id: id, tokens: tokens})
		totalLen += float64(len(tokens))
		seen := make(map[string]struct{})
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			docFreq[t]++
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}
	avgLen := totalLen / float64(len(docs))
	if avgLen == 0 {
		return nil, nil
	}

	hits := make([]ScoredID, 0, len(docs))
	for _, d := range docs {
		tf := make(map[string]float64)
		for _, t := range d.tokens {
			tf[t]++
		}
		var score float64
		for _, q := range queryTokens {
			f := tf[q]
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (float64(len(docs))-float64(docFreq[q])+0.5)/(float64(docFreq[q])+0.5))
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(len(d.tokens))/avgLen))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, ScoredID{ID: d.id, Score: score})
		}
	}
	sortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryStore) SearchVector(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]ScoredID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("SearchVector")

	hits := make([]ScoredID, 0)
	for id, rec := range s.records[collection] {
		if len(rec.Embedding) == 0 {
			continue
		}
		sim := utils.CosineSimilarity(vector, rec.Embedding)
		if sim >= minScore {
			hits = append(hits, ScoredID{ID: id, Score: sim})
		}
	}
	sortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryStore) UpsertClusters(ctx context.Context, clusters []*types.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpsertClusters")
	for _, c := range clusters {
		s.clusters[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) ListClusters(ctx context.Context) ([]*types.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListClusters")
	out := make([]*types.Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertGoldenRecords(ctx context.Context, records []*types.GoldenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpsertGoldenRecords")
	for _, g := range records {
		s.goldens[g.ID] = g
	}
	return nil
}

func (s *MemoryStore) ListGoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListGoldenRecords")
	out := make([]*types.GoldenRecord, 0, len(s.goldens))
	for _, g := range s.goldens {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetBlob")
	data, ok := s.blobs[key]
	if !ok {
		return nil, NewError(KindNotFound, "GetBlob", key, errMissing)
	}
	return data, nil
}

func (s *MemoryStore) PutBlob(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("PutBlob")
	s.blobs[key] = data
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// sortHits orders by score descending, id ascending for determinism.
func sortHits(hits []ScoredID) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
