package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/server/dto"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// RecordsHandler handles source record ingestion and lookup.
type RecordsHandler struct {
	client coalesce.Coalesce
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(client coalesce.Coalesce) *RecordsHandler {
	return &RecordsHandler{client: client}
}

// IngestRecords handles POST /api/v1/records.
func (h *RecordsHandler) IngestRecords(c *gin.Context) {
	var req dto.IngestRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	records := make([]*types.Record, 0, len(req.Records))
	for _, payload := range req.Records {
		records = append(records, &types.Record{
			ID:         payload.ID,
			Collection: req.Collection,
			Fields:     payload.Fields,
		})
	}

	stats, err := h.client.IngestRecords(c.Request.Context(), records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "ingest_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.IngestResponse{Upserted: stats.Upserted, Skipped: stats.Skipped})
}

// GetRecord handles GET /api/v1/records/:collection/:id.
func (h *RecordsHandler) GetRecord(c *gin.Context) {
	collection := c.Param("collection")
	id := c.Param("id")

	rec, err := h.client.Store().GetRecord(c.Request.Context(), collection, id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
