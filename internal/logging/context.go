package logging

import (
	"context"
	"log/slog"

	"foundry/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldIndex is the standardized structured logging key for asset indices.
	FieldIndex = "index"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldProvider is the standardized structured logging key for storage provider names.
	FieldProvider = "provider"
	// FieldRequestID is the standardized structured logging key for request correlation identifiers.
	FieldRequestID = "request_id"
	// FieldEventType tags records with a machine-readable event class.
	FieldEventType = "event_type"
	// FieldErrorHint carries a short operator-facing remediation hint.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if index, ok := services.IndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldIndex, index))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
