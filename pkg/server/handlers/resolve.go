package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/server/dto"
)

// ResolveHandler runs the resolution pipeline and serves its results. Only
// one run executes at a time; a second request while a run is in flight gets
// a conflict.
type ResolveHandler struct {
	client coalesce.Coalesce
	opts   pipeline.Options
	logger *slog.Logger

	mu         sync.Mutex
	running    bool
	lastReport *pipeline.Report
}

// NewResolveHandler creates a resolve handler.
func NewResolveHandler(client coalesce.Coalesce, opts pipeline.Options, logger *slog.Logger) *ResolveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveHandler{client: client, opts: opts, logger: logger}
}

// Run handles POST /api/v1/resolve/run.
func (h *ResolveHandler) Run(c *gin.Context) {
	var req dto.RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
			return
		}
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "run_in_progress", Message: "a pipeline run is already executing"})
		return
	}
	h.running = true
	h.mu.Unlock()

	if req.Async {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("panic in background pipeline run", "panic", r)
				}
			}()
			// Detached from the request so a client disconnect does not
			// cancel the run.
			h.execute(context.Background())
		}()
		c.JSON(http.StatusAccepted, dto.RunResponse{Status: "started"})
		return
	}

	report := h.execute(c.Request.Context())
	status := http.StatusOK
	if report == nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "run_failed", Message: "pipeline did not produce a report"})
		return
	}
	if report.Status != pipeline.StatusCompleted {
		status = http.StatusInternalServerError
	}
	c.JSON(status, report)
}

// execute runs the pipeline and records the report. It always clears the
// running flag.
func (h *ResolveHandler) execute(ctx context.Context) *pipeline.Report {
	report, err := h.client.Run(ctx, nil, h.opts)
	if err != nil {
		h.logger.Error("pipeline run failed", "error", err)
	}

	h.mu.Lock()
	h.running = false
	if report != nil {
		h.lastReport = report
	}
	h.mu.Unlock()
	return report
}

// Report handles GET /api/v1/resolve/report, returning the most recent run
// report.
func (h *ResolveHandler) Report(c *gin.Context) {
	h.mu.Lock()
	report := h.lastReport
	running := h.running
	h.mu.Unlock()

	if report == nil {
		if running {
			c.JSON(http.StatusAccepted, dto.RunResponse{Status: "running"})
			return
		}
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "no_report", Message: "no pipeline run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Clusters handles GET /api/v1/clusters.
func (h *ResolveHandler) Clusters(c *gin.Context) {
	clusters, err := h.client.Clusters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

// GoldenRecords handles GET /api/v1/golden.
func (h *ResolveHandler) GoldenRecords(c *gin.Context) {
	goldens, err := h.client.GoldenRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"golden_records": goldens, "count": len(goldens)})
}
