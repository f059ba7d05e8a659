package build

import (
	"context"
	"log/slog"
)

// HandlerSet fans out log records to multiple underlying slog handlers.
// This enables dual-stream logging where records go to both the console
// and a rotating log file.
type HandlerSet struct {
	set []slog.Handler
}

// NewHandlerSet constructs a new HandlerSet from the given handlers.
func NewHandlerSet(handlers ...slog.Handler) *HandlerSet {
	return &HandlerSet{set: handlers}
}

// Enabled reports whether any handler in the set handles records at the
// given level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle dispatches the record to every handler that accepts its level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs returns a new HandlerSet with the attributes applied to all
// underlying handlers.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	set := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		set[i] = handler.WithAttrs(attrs)
	}

	return &HandlerSet{set: set}
}

// WithGroup returns a new HandlerSet with the group applied to all
// underlying handlers.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	set := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		set[i] = handler.WithGroup(name)
	}

	return &HandlerSet{set: set}
}
