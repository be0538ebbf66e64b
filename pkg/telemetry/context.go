// Package telemetry captures error-level log records into durable sinks
// (Parquet files or a SQL table) alongside the normal console handler, so
// failed pipeline runs can be inspected after the fact.
package telemetry

import "context"

type contextKey string

// Context keys the handlers read to tag captured records with their run.
const (
	ContextKeyRunID      contextKey = "run_id"
	ContextKeyCollection contextKey = "collection"
	ContextKeyStage      contextKey = "stage"
)

// WithRun tags a context with the pipeline run id and collection.
func WithRun(ctx context.Context, runID, collection string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyRunID, runID)
	return context.WithValue(ctx, ContextKeyCollection, collection)
}

// WithStage tags a context with the current pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
