package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// Key prefixes for the embedded keyspace.
const (
	prefixRecord  = "rec:"
	prefixEdge    = "edge:"
	prefixCluster = "cluster:"
	prefixGolden  = "golden:"
	prefixBlob    = "blob:"
	prefixRel     = "rel:"
)

// BadgerStore is an embedded RecordStore backed by BadgerDB. Values are JSON;
// keys are prefixed by kind so prefix iteration covers each keyspace. Search
// operations scan the collection keyspace and rank in memory, which is the
// right trade for an embedded store holding up to a few hundred thousand
// records.
type BadgerStore struct {
	db *badger.DB
}

var _ RecordStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) an embedded store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, NewError(KindUnavailable, "Open", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(collection, id string) []byte {
	return []byte(prefixRecord + collection + ":" + id)
}

func edgeKey(relation, key string) []byte {
	return []byte(prefixEdge + relation + ":" + key)
}

func (s *BadgerStore) GetRecord(ctx context.Context, collection, id string) (*types.Record, error) {
	var rec types.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, NewError(KindNotFound, "GetRecord", collection+"/"+id, err)
	}
	if err != nil {
		return nil, NewError(KindInternal, "GetRecord", collection+"/"+id, err)
	}
	return &rec, nil
}

func (s *BadgerStore) GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error) {
	out := make([]*types.Record, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(recordKey(collection, id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var rec types.Record
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "GetRecords", collection, err)
	}
	return out, nil
}

func (s *BadgerStore) ListIDs(ctx context.Context, collection string) ([]string, error) {
	prefix := []byte(prefixRecord + collection + ":")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "ListIDs", collection, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BadgerStore) UpsertRecords(ctx context.Context, records []*types.Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return NewError(KindInvalid, "UpsertRecords", rec.ID, err)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return NewError(KindInternal, "UpsertRecords", rec.ID, err)
		}
		if err := wb.Set(recordKey(rec.Collection, rec.ID), data); err != nil {
			return NewError(KindInternal, "UpsertRecords", rec.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return NewError(KindInternal, "UpsertRecords", "", err)
	}
	return nil
}

func (s *BadgerStore) UpsertEdges(ctx context.Context, edges []*types.SimilarityEdge) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range edges {
			key := edgeKey(e.Relation, e.Key)
			merged := *e
			if item, err := txn.Get(key); err == nil {
				var existing types.SimilarityEdge
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &existing) }); err != nil {
					return err
				}
				merged.Methods = utils.DedupeStrings(append(existing.Methods, e.Methods...))
				merged.CreatedAt = existing.CreatedAt
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			data, err := json.Marshal(&merged)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return NewError(KindInternal, "UpsertEdges", "", err)
	}
	return nil
}

func relKey(relation, key string) []byte {
	return []byte(prefixRel + relation + ":" + key)
}

func (s *BadgerStore) UpsertRelationships(ctx context.Context, edges []*types.RelationshipEdge) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range edges {
		data, err := json.Marshal(e)
		if err != nil {
			return NewError(KindInternal, "UpsertRelationships", e.Key, err)
		}
		if err := wb.Set(relKey(e.Relation, e.Key), data); err != nil {
			return NewError(KindInternal, "UpsertRelationships", e.Key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return NewError(KindInternal, "UpsertRelationships", "", err)
	}
	return nil
}

func (s *BadgerStore) GetRelationships(ctx context.Context, relation string) ([]*types.RelationshipEdge, error) {
	prefix := []byte(prefixRel + relation + ":")
	var edges []*types.RelationshipEdge
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e types.RelationshipEdge
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			edges = append(edges, &e)
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "GetRelationships", relation, err)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key < edges[j].Key })
	return edges, nil
}

func (s *BadgerStore) ReplaceRelationships(ctx context.Context, relation string, edges []*types.RelationshipEdge) error {
	prefix := []byte(prefixRel + relation + ":")
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, e := range edges {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(relKey(e.Relation, e.Key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return NewError(KindInternal, "ReplaceRelationships", relation, err)
	}
	return nil
}

func (s *BadgerStore) CountEdges(ctx context.Context, relation string) (int64, error) {
	prefix := []byte(prefixEdge + relation + ":")
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, NewError(KindInternal, "CountEdges", relation, err)
	}
	return n, nil
}

func (s *BadgerStore) GetEdgesByRelation(ctx context.Context, relation string, limit int64) ([]*types.SimilarityEdge, error) {
	prefix := []byte(prefixEdge + relation + ":")
	var edges []*types.SimilarityEdge
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && int64(len(edges)) >= limit {
				break
			}
			var e types.SimilarityEdge
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			edges = append(edges, &e)
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "GetEdgesByRelation", relation, err)
	}
	return edges, nil
}

func (s *BadgerStore) SearchText(ctx context.Context, collection, field, query string, topK int) ([]ScoredID, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	type doc struct {
		id     string
		tokens []string
	}
	var docs []doc
	var totalLen float64
	docFreq := make(map[string]int)

	prefix := []byte(prefixRecord + collection + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec types.Record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			tokens := tokenize(rec.Text(field))
			docs = append(docs, doc{id: rec.ID, tokens: tokens})
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
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "SearchText", collection, err)
	}
	if len(docs) == 0 || totalLen == 0 {
		return nil, nil
	}
	avgLen := totalLen / float64(len(docs))

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

func (s *BadgerStore) SearchVector(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]ScoredID, error) {
	var hits []ScoredID
	prefix := []byte(prefixRecord + collection + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec types.Record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if len(rec.Embedding) == 0 {
				continue
			}
			sim := utils.CosineSimilarity(vector, rec.Embedding)
			if sim >= minScore {
				hits = append(hits, ScoredID{ID: rec.ID, Score: sim})
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "SearchVector", collection, err)
	}
	sortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *BadgerStore) UpsertClusters(ctx context.Context, clusters []*types.Cluster) error {
	return s.putJSON(prefixCluster, "UpsertClusters", len(clusters), func(i int) (string, interface{}) {
		return clusters[i].ID, clusters[i]
	})
}

func (s *BadgerStore) ListClusters(ctx context.Context) ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.listJSON(prefixCluster, func(val []byte) error {
		var c types.Cluster
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "ListClusters", "", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BadgerStore) UpsertGoldenRecords(ctx context.Context, records []*types.GoldenRecord) error {
	return s.putJSON(prefixGolden, "UpsertGoldenRecords", len(records), func(i int) (string, interface{}) {
		return records[i].ID, records[i]
	})
}

func (s *BadgerStore) ListGoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error) {
	var out []*types.GoldenRecord
	err := s.listJSON(prefixGolden, func(val []byte) error {
		var g types.GoldenRecord
		if err := json.Unmarshal(val, &g); err != nil {
			return err
		}
		out = append(out, &g)
		return nil
	})
	if err != nil {
		return nil, NewError(KindInternal, "ListGoldenRecords", "", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BadgerStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixBlob + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, NewError(KindNotFound, "GetBlob", key, err)
	}
	if err != nil {
		return nil, NewError(KindInternal, "GetBlob", key, err)
	}
	return data, nil
}

func (s *BadgerStore) PutBlob(ctx context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixBlob+key), data)
	})
	if err != nil {
		return NewError(KindInternal, "PutBlob", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) putJSON(prefix, op string, n int, at func(int) (string, interface{})) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := 0; i < n; i++ {
		id, v := at(i)
		data, err := json.Marshal(v)
		if err != nil {
			return NewError(KindInternal, op, id, err)
		}
		if err := wb.Set([]byte(prefix+id), data); err != nil {
			return NewError(KindInternal, op, id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return NewError(KindInternal, op, "", err)
	}
	return nil
}

func (s *BadgerStore) listJSON(prefix string, visit func([]byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(func(val []byte) error { return visit(val) }); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) String() string {
	return fmt.Sprintf("badger store (%s)", strings.TrimSuffix(s.db.Opts().Dir, "/"))
}
