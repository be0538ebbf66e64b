package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// LogRecord is one captured log entry in Parquet form.
type LogRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	RunID      string    `parquet:"run_id"`
	Collection string    `parquet:"collection"`
	Stage      string    `parquet:"stage"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON string
}

// ParquetHandler is a slog.Handler that buffers error-level records and
// flushes them to timestamped Parquet files. All records pass through to the
// wrapped handler unchanged.
type ParquetHandler struct {
	next      slog.Handler
	outputDir string
	mu        sync.Mutex
	buffer    []LogRecord
	batchSize int
}

// NewParquetHandler creates a handler writing under outputDir.
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create output directory: %w", err)
	}
	return &ParquetHandler{
		next:      next,
		outputDir: outputDir,
		batchSize: 100,
		buffer:    make([]LogRecord, 0, 100),
	}, nil
}

// Enabled implements slog.Handler.
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. Records below error level pass through
// without being captured.
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < slog.LevelError {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffer = append(h.buffer, capture(ctx, r))
	if len(h.buffer) >= h.batchSize {
		return h.flushLocked()
	}
	return nil
}

// Flush writes any buffered records out immediately. Call it before process
// exit so a short run's errors are not lost to batching.
func (h *ParquetHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked()
}

func (h *ParquetHandler) flushLocked() error {
	if len(h.buffer) == 0 {
		return nil
	}
	name := fmt.Sprintf("run_errors_%s_%d.parquet", time.Now().UTC().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(h.outputDir, name)
	if err := parquet.WriteFile(path, h.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to write parquet file: %v\n", err)
		return err
	}
	h.buffer = h.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler. Child handlers batch independently.
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithAttrs(attrs),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buffer:    make([]LogRecord, 0, h.batchSize),
	}
}

// WithGroup implements slog.Handler.
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithGroup(name),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buffer:    make([]LogRecord, 0, h.batchSize),
	}
}

// capture flattens one slog record plus its run context into a LogRecord.
func capture(ctx context.Context, r slog.Record) LogRecord {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	return LogRecord{
		ID:         uuid.New().String(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		RunID:      stringFromContext(ctx, ContextKeyRunID),
		Collection: stringFromContext(ctx, ContextKeyCollection),
		Stage:      stringFromContext(ctx, ContextKeyStage),
		SourceFile: f.File,
		LineNumber: f.Line,
		Attributes: string(attrsJSON),
	}
}
