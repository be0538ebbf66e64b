// Package handlers implements the HTTP endpoints of the resolution API.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/types"
)

// Build information, settable at build time with ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	client coalesce.Coalesce
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(client coalesce.Coalesce) *HealthHandler {
	return &HealthHandler{client: client}
}

// HealthCheck handles GET /health.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "coalesce",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. It probes the store with a cheap read.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.client.Store().CountEdges(ctx, types.SimilarityRelation); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// LivenessCheck handles GET /live for orchestrator probes.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "go_version": GoVersion})
}
