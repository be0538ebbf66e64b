package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/tributary-data/coalesce/pkg/types"
)

// Index names used by the search operations.
const (
	fulltextIndexName = "record_search"
	vectorIndexName   = "record_embedding"
)

// Neo4jStore implements RecordStore against a Neo4j database. Records are
// (:Record) nodes carrying their fields as a JSON property plus flattened
// f_<path> text properties for fulltext search. Similarity edges are
// [:RELATES {key, relation}] relationships merged by key.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

var _ RecordStore = (*Neo4jStore)(nil)

// NewNeo4jStore connects to a Neo4j instance.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, NewError(KindUnavailable, "Connect", uri, err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: driver, database: database}, nil
}

func (s *Neo4jStore) classify(op, key string, err error) error {
	if neo4j.IsConnectivityError(err) {
		return NewError(KindUnavailable, op, key, err)
	}
	return NewError(KindInternal, op, key, err)
}

// CreateIndices creates the uniqueness constraint, the fulltext index over
// the given field paths, and the vector index. Call once before the first
// pipeline run against a fresh database.
func (s *Neo4jStore) CreateIndices(ctx context.Context, fields []string, dimensions int) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	props := make([]string, 0, len(fields))
	for _, f := range fields {
		props = append(props, "r."+textProp(f))
	}
	statements := []string{
		`CREATE CONSTRAINT record_id IF NOT EXISTS FOR (r:Record) REQUIRE (r.collection, r.id) IS UNIQUE`,
	}
	if len(props) > 0 {
		statements = append(statements, fmt.Sprintf(
			`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (r:Record) ON EACH [%s]`,
			fulltextIndexName, strings.Join(props, ", ")))
	}
	if dimensions > 0 {
		statements = append(statements, fmt.Sprintf(
			"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (r:Record) ON (r.embedding) "+
				"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			vectorIndexName, dimensions))
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return s.classify("CreateIndices", "", err)
	}
	return nil
}

// textProp maps a field path to its flattened fulltext property name.
func textProp(path string) string {
	return "f_" + strings.ReplaceAll(path, ".", "_")
}

func recordToProps(rec *types.Record) (map[string]any, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, err
	}
	props := map[string]any{
		"id":         rec.ID,
		"collection": rec.Collection,
		"fields":     string(fields),
	}
	if len(rec.Embedding) > 0 {
		emb := make([]float64, len(rec.Embedding))
		for i, v := range rec.Embedding {
			emb[i] = float64(v)
		}
		props["embedding"] = emb
	}
	for _, path := range rec.FieldPaths() {
		if text := rec.Text(path); text != "" {
			props[textProp(path)] = text
		}
	}
	return props, nil
}

func recordFromNode(node dbtype.Node) (*types.Record, error) {
	rec := &types.Record{}
	if id, ok := node.Props["id"].(string); ok {
		rec.ID = id
	}
	if coll, ok := node.Props["collection"].(string); ok {
		rec.Collection = coll
	}
	if fields, ok := node.Props["fields"].(string); ok {
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, err
		}
	}
	if emb, ok := node.Props["embedding"].([]any); ok {
		rec.Embedding = make([]float32, 0, len(emb))
		for _, v := range emb {
			if f, ok := v.(float64); ok {
				rec.Embedding = append(rec.Embedding, float32(f))
			}
		}
	}
	return rec, nil
}

func (s *Neo4jStore) GetRecord(ctx context.Context, collection, id string) (*types.Record, error) {
	recs, err := s.GetRecords(ctx, collection, []string{id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewError(KindNotFound, "GetRecord", collection+"/"+id, errMissing)
	}
	return recs[0], nil
}

func (s *Neo4jStore) GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $ids AS rid
			MATCH (r:Record {collection: $collection, id: rid})
			RETURN r
		`, map[string]any{"collection": collection, "ids": ids})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("GetRecords", collection, err)
	}

	records := result.([]*db.Record)
	out := make([]*types.Record, 0, len(records))
	for _, record := range records {
		nodeValue, found := record.Get("r")
		if !found {
			continue
		}
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			return nil, NewError(KindInternal, "GetRecords", collection,
				fmt.Errorf("unexpected node type %T", nodeValue))
		}
		rec, err := recordFromNode(node)
		if err != nil {
			return nil, NewError(KindInternal, "GetRecords", collection, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Neo4jStore) ListIDs(ctx context.Context, collection string) ([]string, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (r:Record {collection: $collection})
			RETURN r.id AS id
		`, map[string]any{"collection": collection})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("ListIDs", collection, err)
	}

	records := result.([]*db.Record)
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if id, found := record.Get("id"); found {
			if str, ok := id.(string); ok {
				ids = append(ids, str)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Neo4jStore) UpsertRecords(ctx context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	recordData := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return NewError(KindInvalid, "UpsertRecords", rec.ID, err)
		}
		props, err := recordToProps(rec)
		if err != nil {
			return NewError(KindInternal, "UpsertRecords", rec.ID, err)
		}
		recordData = append(recordData, map[string]any{
			"id":         rec.ID,
			"collection": rec.Collection,
			"properties": props,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			UNWIND $records AS rec
			MERGE (r:Record {collection: rec.collection, id: rec.id})
			SET r += rec.properties
			SET r.updated_at = $updated_at
		`, map[string]any{
			"records":    recordData,
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		})
		return nil, err
	})
	if err != nil {
		return s.classify("UpsertRecords", "", err)
	}
	return nil
}

func (s *Neo4jStore) UpsertEdges(ctx context.Context, edges []*types.SimilarityEdge) error {
	if len(edges) == 0 {
		return nil
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	edgeData := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		edgeData = append(edgeData, map[string]any{
			"key":        e.Key,
			"source_id":  e.SourceID,
			"target_id":  e.TargetID,
			"relation":   e.Relation,
			"weight":     e.Weight,
			"confidence": e.Confidence,
			"methods":    e.Methods,
			"created_at": e.CreatedAt.Format(time.RFC3339),
		})
	}

	// MERGE on key keeps re-runs idempotent: weight and methods are updated
	// in place, no duplicate relationships.
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			UNWIND $edges AS edge
			MATCH (a:Record {id: edge.source_id})
			MATCH (b:Record {id: edge.target_id})
			MERGE (a)-[r:RELATES {key: edge.key}]->(b)
			ON CREATE SET r.created_at = edge.created_at, r.methods = edge.methods
			ON MATCH SET r.methods = [x IN coalesce(r.methods, []) WHERE NOT x IN edge.methods] + edge.methods
			SET r.relation = edge.relation, r.weight = edge.weight, r.confidence = edge.confidence
		`, map[string]any{"edges": edgeData})
		return nil, err
	})
	if err != nil {
		return s.classify("UpsertEdges", "", err)
	}
	return nil
}

func (s *Neo4jStore) CountEdges(ctx context.Context, relation string) (int64, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH ()-[r:RELATES {relation: $relation}]->()
			RETURN count(r) AS n
		`, map[string]any{"relation": relation})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return 0, s.classify("CountEdges", relation, err)
	}

	record := result.(*db.Record)
	if n, found := record.Get("n"); found {
		if count, ok := n.(int64); ok {
			return count, nil
		}
	}
	return 0, nil
}

func (s *Neo4jStore) GetEdgesByRelation(ctx context.Context, relation string, limit int64) ([]*types.SimilarityEdge, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Record)-[r:RELATES {relation: $relation}]->(b:Record)
			RETURN r.key AS key, a.id AS source, b.id AS target, r.weight AS weight, r.confidence AS confidence, r.methods AS methods
			LIMIT $limit
		`, map[string]any{"relation": relation, "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("GetEdgesByRelation", relation, err)
	}

	records := result.([]*db.Record)
	edges := make([]*types.SimilarityEdge, 0, len(records))
	for _, record := range records {
		edge := &types.SimilarityEdge{Relation: relation}
		if key, _ := record.Get("key"); key != nil {
			edge.Key, _ = key.(string)
		}
		if src, _ := record.Get("source"); src != nil {
			edge.SourceID, _ = src.(string)
		}
		if tgt, _ := record.Get("target"); tgt != nil {
			edge.TargetID, _ = tgt.(string)
		}
		if w, _ := record.Get("weight"); w != nil {
			edge.Weight, _ = w.(float64)
		}
		if c, _ := record.Get("confidence"); c != nil {
			edge.Confidence, _ = c.(float64)
		}
		if methods, _ := record.Get("methods"); methods != nil {
			if list, ok := methods.([]any); ok {
				for _, m := range list {
					if str, ok := m.(string); ok {
						edge.Methods = append(edge.Methods, str)
					}
				}
			}
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func (s *Neo4jStore) SearchText(ctx context.Context, collection, field, query string, topK int) ([]ScoredID, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	// Scope the Lucene query to the flattened field property.
	escaped := make([]string, 0, len(tokens))
	for _, t := range tokens {
		escaped = append(escaped, luceneEscape(t))
	}
	luceneQuery := fmt.Sprintf("%s:(%s)", textProp(field), strings.Join(escaped, " "))

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
			WHERE node.collection = $collection
			RETURN node.id AS id, score
			LIMIT $limit
		`, map[string]any{
			"index":      fulltextIndexName,
			"query":      luceneQuery,
			"collection": collection,
			"limit":      topK,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("SearchText", collection, err)
	}
	return collectHits(result.([]*db.Record), 0), nil
}

func (s *Neo4jStore) SearchVector(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]ScoredID, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	vec := make([]float64, len(vector))
	for i, v := range vector {
		vec[i] = float64(v)
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node, score
			WHERE node.collection = $collection AND score >= $min_score
			RETURN node.id AS id, score
		`, map[string]any{
			"index":      vectorIndexName,
			"k":          topK,
			"vector":     vec,
			"collection": collection,
			"min_score":  minScore,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("SearchVector", collection, err)
	}
	return collectHits(result.([]*db.Record), minScore), nil
}

func collectHits(records []*db.Record, minScore float64) []ScoredID {
	hits := make([]ScoredID, 0, len(records))
	for _, record := range records {
		hit := ScoredID{}
		if id, found := record.Get("id"); found {
			hit.ID, _ = id.(string)
		}
		if score, found := record.Get("score"); found {
			hit.Score, _ = score.(float64)
		}
		if hit.ID != "" && hit.Score >= minScore {
			hits = append(hits, hit)
		}
	}
	return hits
}

func luceneEscape(token string) string {
	var sb strings.Builder
	for _, r := range token {
		if strings.ContainsRune(`+-&|!(){}[]^"~*?:\/`, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Neo4jStore) UpsertClusters(ctx context.Context, clusters []*types.Cluster) error {
	return s.upsertJSONNodes(ctx, "Cluster", "UpsertClusters", len(clusters), func(i int) (string, any) {
		return clusters[i].ID, clusters[i]
	})
}

func (s *Neo4jStore) ListClusters(ctx context.Context) ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.listJSONNodes(ctx, "Cluster", "ListClusters", func(data []byte) error {
		var c types.Cluster
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Neo4jStore) UpsertGoldenRecords(ctx context.Context, records []*types.GoldenRecord) error {
	return s.upsertJSONNodes(ctx, "Golden", "UpsertGoldenRecords", len(records), func(i int) (string, any) {
		return records[i].ID, records[i]
	})
}

func (s *Neo4jStore) ListGoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error) {
	var out []*types.GoldenRecord
	err := s.listJSONNodes(ctx, "Golden", "ListGoldenRecords", func(data []byte) error {
		var g types.GoldenRecord
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		out = append(out, &g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Domain relationship edges live on (:Relationship) nodes rather than graph
// relationships: the remap sweep rewrites endpoints wholesale, and node JSON
// payloads make replace-by-relation a two-statement transaction.
func (s *Neo4jStore) UpsertRelationships(ctx context.Context, edges []*types.RelationshipEdge) error {
	if len(edges) == 0 {
		return nil
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	items, err := relationshipItems(edges)
	if err != nil {
		return NewError(KindInternal, "UpsertRelationships", "", err)
	}
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			UNWIND $items AS item
			MERGE (n:Relationship {key: item.key})
			SET n.relation = item.relation, n.data = item.data
		`, map[string]any{"items": items})
		return nil, err
	})
	if err != nil {
		return s.classify("UpsertRelationships", "", err)
	}
	return nil
}

func (s *Neo4jStore) GetRelationships(ctx context.Context, relation string) ([]*types.RelationshipEdge, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Relationship {relation: $relation})
			RETURN n.data AS data
		`, map[string]any{"relation": relation})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("GetRelationships", relation, err)
	}

	var edges []*types.RelationshipEdge
	for _, record := range result.([]*db.Record) {
		if data, found := record.Get("data"); found {
			if str, ok := data.(string); ok {
				var e types.RelationshipEdge
				if err := json.Unmarshal([]byte(str), &e); err != nil {
					return nil, NewError(KindInternal, "GetRelationships", relation, err)
				}
				edges = append(edges, &e)
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key < edges[j].Key })
	return edges, nil
}

func (s *Neo4jStore) ReplaceRelationships(ctx context.Context, relation string, edges []*types.RelationshipEdge) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	items, err := relationshipItems(edges)
	if err != nil {
		return NewError(KindInternal, "ReplaceRelationships", relation, err)
	}
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (n:Relationship {relation: $relation})
			DELETE n
		`, map[string]any{"relation": relation}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
			UNWIND $items AS item
			CREATE (n:Relationship {key: item.key, relation: item.relation, data: item.data})
		`, map[string]any{"items": items})
		return nil, err
	})
	if err != nil {
		return s.classify("ReplaceRelationships", relation, err)
	}
	return nil
}

func relationshipItems(edges []*types.RelationshipEdge) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		items = append(items, map[string]any{
			"key":      e.Key,
			"relation": e.Relation,
			"data":     string(data),
		})
	}
	return items, nil
}

func (s *Neo4jStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (b:Blob {key: $key})
			RETURN b.data AS data
		`, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, s.classify("GetBlob", key, err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, NewError(KindNotFound, "GetBlob", key, errMissing)
	}
	if data, found := records[0].Get("data"); found {
		if str, ok := data.(string); ok {
			return []byte(str), nil
		}
	}
	return nil, NewError(KindInternal, "GetBlob", key, fmt.Errorf("unexpected blob payload"))
}

func (s *Neo4jStore) PutBlob(ctx context.Context, key string, data []byte) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (b:Blob {key: $key})
			SET b.data = $data
		`, map[string]any{"key": key, "data": string(data)})
		return nil, err
	})
	if err != nil {
		return s.classify("PutBlob", key, err)
	}
	return nil
}

func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

func (s *Neo4jStore) upsertJSONNodes(ctx context.Context, label, op string, n int, at func(int) (string, any)) error {
	if n == 0 {
		return nil
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		id, v := at(i)
		data, err := json.Marshal(v)
		if err != nil {
			return NewError(KindInternal, op, id, err)
		}
		items = append(items, map[string]any{"id": id, "data": string(data)})
	}

	query := fmt.Sprintf(`
		UNWIND $items AS item
		MERGE (n:%s {id: item.id})
		SET n.data = item.data
	`, label)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"items": items})
		return nil, err
	})
	if err != nil {
		return s.classify(op, "", err)
	}
	return nil
}

func (s *Neo4jStore) listJSONNodes(ctx context.Context, label, op string, visit func([]byte) error) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`MATCH (n:%s) RETURN n.data AS data`, label), nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return s.classify(op, "", err)
	}

	for _, record := range result.([]*db.Record) {
		if data, found := record.Get("data"); found {
			if str, ok := data.(string); ok {
				if err := visit([]byte(str)); err != nil {
					return NewError(KindInternal, op, "", err)
				}
			}
		}
	}
	return nil
}
