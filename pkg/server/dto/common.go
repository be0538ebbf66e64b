// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"errors"
	"strings"

	"github.com/tributary-data/coalesce/pkg/types"
)

// MaxBatchSize bounds one ingestion request.
const MaxBatchSize = 10_000

var (
	ErrEmptyBatch    = errors.New("records array cannot be empty")
	ErrBatchTooLarge = errors.New("records array exceeds the batch limit")
)

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RecordPayload is one source record in an ingestion request.
type RecordPayload struct {
	ID     string                 `json:"id" binding:"required"`
	Fields map[string]types.Value `json:"fields" binding:"required"`
}

// IngestRecordsRequest carries a batch of records for one collection.
type IngestRecordsRequest struct {
	Collection string          `json:"collection" binding:"required"`
	Records    []RecordPayload `json:"records" binding:"required"`
}

// Validate rejects unusable ingestion requests before they reach the store.
func (r *IngestRecordsRequest) Validate() error {
	if strings.TrimSpace(r.Collection) == "" {
		return errors.New("collection cannot be empty")
	}
	if len(r.Records) == 0 {
		return ErrEmptyBatch
	}
	if len(r.Records) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	return nil
}

// IngestResponse reports an ingestion outcome.
type IngestResponse struct {
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

// RunRequest starts a pipeline run.
type RunRequest struct {
	// Async returns immediately with the run id instead of waiting for the
	// run to finish.
	Async bool `json:"async"`
}

// RunResponse acknowledges a started or completed run.
type RunResponse struct {
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status"`
}
