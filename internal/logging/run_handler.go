package logging

import (
	"context"
	"log/slog"
)

// runIDHandler wraps another handler to inject a run_id attribute into all records.
type runIDHandler struct {
	base  slog.Handler
	runID string
}

func newRunIDHandler(base slog.Handler, runID string) slog.Handler {
	if base == nil {
		return discardHandler{}
	}
	return &runIDHandler{
		base:  base,
		runID: runID,
	}
}

func (h *runIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *runIDHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldRunID, h.runID))
	return h.base.Handle(ctx, record)
}

// WithAttrs stops injecting once the caller supplies its own run_id, as
// loggers derived from a run context do.
func (h *runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if HasAttrKey(attrs, FieldRunID) {
		return h.base.WithAttrs(attrs)
	}
	return &runIDHandler{base: h.base.WithAttrs(attrs), runID: h.runID}
}

// WithGroup pins run_id at the top level before opening the group.
func (h *runIDHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.base.WithAttrs([]slog.Attr{slog.String(FieldRunID, h.runID)}).WithGroup(name)
}
