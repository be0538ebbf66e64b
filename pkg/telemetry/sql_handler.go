package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql" // driver for MySQL-compatible telemetry sinks
)

// SQLHandler is a slog.Handler that mirrors error-level records into a SQL
// table, for deployments that keep run diagnostics in a shared database
// instead of local Parquet files.
type SQLHandler struct {
	next      slog.Handler
	db        *sql.DB
	tableName string
}

// NewSQLHandler wraps next with a SQL sink over an existing connection.
func NewSQLHandler(next slog.Handler, db *sql.DB) (*SQLHandler, error) {
	h := &SQLHandler{next: next, db: db, tableName: "run_errors"}
	if err := h.ensureTable(); err != nil {
		return nil, fmt.Errorf("telemetry: ensure table: %w", err)
	}
	return h, nil
}

func (h *SQLHandler) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			timestamp TIMESTAMP,
			level VARCHAR(10),
			message TEXT,
			run_id VARCHAR(255),
			collection VARCHAR(255),
			stage VARCHAR(64),
			source_file VARCHAR(255),
			line_number INT,
			attributes JSON
		)
	`, h.tableName)
	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler.
func (h *SQLHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. Insert failures never block the logging
// chain.
func (h *SQLHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < slog.LevelError {
		return nil
	}

	rec := capture(ctx, r)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, timestamp, level, message, run_id, collection, stage, source_file, line_number, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.tableName)
	_, err := h.db.Exec(query,
		rec.ID, rec.Timestamp, rec.Level, rec.Message,
		rec.RunID, rec.Collection, rec.Stage,
		rec.SourceFile, rec.LineNumber, rec.Attributes,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to write log to sql: %v\n", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *SQLHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SQLHandler{next: h.next.WithAttrs(attrs), db: h.db, tableName: h.tableName}
}

// WithGroup implements slog.Handler.
func (h *SQLHandler) WithGroup(name string) slog.Handler {
	return &SQLHandler{next: h.next.WithGroup(name), db: h.db, tableName: h.tableName}
}
