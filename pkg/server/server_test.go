package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/similarity"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	pcfg := config.DefaultPipeline()
	pcfg.Collection = "people"
	pcfg.Blocking.Strategies = []config.StrategyConfig{
		{Kind: config.StrategyExact, Fields: []string{"email"}},
	}
	pcfg.Weights = similarity.WeightTable{
		UpperThreshold: 3.0,
		LowerThreshold: 0.0,
		Fields: map[string]similarity.FieldWeight{
			"name":  {Comparator: "jaro_winkler", MProb: 0.9, UProb: 0.1, Threshold: 0.85, Importance: 1},
			"email": {Comparator: "exact", MProb: 0.95, UProb: 0.01, Threshold: 1.0, Importance: 1},
		},
	}
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 0, Mode: gin.TestMode},
		Store:    config.StoreConfig{Driver: "memory"},
		Pipeline: pcfg,
	}

	client, err := coalesce.NewClient(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	srv := New(cfg, client, pipeline.Options{}, slog.New(slog.DiscardHandler))
	srv.Setup()
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func ingestBody() map[string]any {
	return map[string]any{
		"collection": "people",
		"records": []map[string]any{
			{"id": "r1", "fields": map[string]any{"name": "John Smith", "email": "john@example.com"}},
			{"id": "r2", "fields": map[string]any{"name": "John Smith", "email": "john@example.com"}},
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := testServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestAndGetRecord(t *testing.T) {
	srv := testServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/records", ingestBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Upserted int `json:"upserted"`
		Skipped  int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Upserted)
	assert.Equal(t, 0, resp.Skipped)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/records/people/r1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/records/people/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	srv := testServer(t)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/records", map[string]any{
		"collection": "people",
		"records":    []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunAndFetchResults(t *testing.T) {
	srv := testServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/records", ingestBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/resolve/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, pipeline.StatusCompleted, report.Status)
	assert.Equal(t, 1, report.Clusters)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/resolve/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/clusters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var clusters struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clusters))
	assert.Equal(t, 1, clusters.Count)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/golden", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var goldens struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goldens))
	assert.Equal(t, 1, goldens.Count)
}

func TestReportBeforeAnyRun(t *testing.T) {
	srv := testServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/v1/resolve/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/records", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
