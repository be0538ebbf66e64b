// Package logger provides slog handlers for the resolution pipeline: a
// colored text handler for terminals and a default constructor used by the
// CLI and the library facade.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// ColorHandler is a slog.Handler that writes human-readable lines with
// ANSI colors keyed by level. Warnings are yellow, errors red, and
// persistence milestones green.
type ColorHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
	group string
}

// NewColorHandler creates a handler writing to out. opts may be nil.
func NewColorHandler(out io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	h := &ColorHandler{mu: &sync.Mutex{}, out: out}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(colorGray)
	sb.WriteString(r.Time.Format(time.RFC3339))
	sb.WriteString(colorReset)
	sb.WriteByte(' ')

	color := colorForRecord(r)
	if color != "" {
		sb.WriteString(color)
	}
	sb.WriteString(r.Level.String())
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	writeAttr := func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)

	if color != "" {
		sb.WriteString(colorReset)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func colorForRecord(r slog.Record) string {
	switch {
	case r.Level >= slog.LevelError:
		return colorRed
	case r.Level >= slog.LevelWarn:
		return colorYellow
	case strings.Contains(strings.ToLower(r.Message), "persist"):
		return colorGreen
	default:
		return ""
	}
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// NewDefaultLogger returns a colored stderr logger at the given level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
