package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldNotePath is the standardized structured logging key for notebook file paths.
	FieldNotePath = "note_path"
	// FieldPage is the standardized structured logging key for zero-based page indexes.
	FieldPage = "page"
	// FieldRunID is the standardized structured logging key for processing run identifiers.
	FieldRunID = "run_id"
)

type contextKey string

const (
	notePathKey contextKey = FieldNotePath
	pageKey     contextKey = FieldPage
	runIDKey    contextKey = FieldRunID
)

// WithNotePath annotates the context with the notebook path being processed.
func WithNotePath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, notePathKey, path)
}

// WithPage annotates the context with the zero-based page index being processed.
func WithPage(ctx context.Context, page int) context.Context {
	return context.WithValue(ctx, pageKey, page)
}

// WithRunID annotates the context with the processing run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]Attr, 0, 3)
	if path, ok := ctx.Value(notePathKey).(string); ok && path != "" {
		attrs = append(attrs, String(FieldNotePath, path))
	}
	if page, ok := ctx.Value(pageKey).(int); ok {
		attrs = append(attrs, Int(FieldPage, page))
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		attrs = append(attrs, String(FieldRunID, runID))
	}
	return attrs
}

// WithContext returns a logger annotated with any standardized fields carried
// by the context. A nil logger yields the no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
