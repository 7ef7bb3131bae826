package services

import "context"

type contextKey string

const (
	contextKeyIndex     contextKey = "asset_index"
	contextKeyStage     contextKey = "stage"
	contextKeyRequestID contextKey = "request_id"
)

// WithIndex attaches an asset index to the context for log correlation.
func WithIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, contextKeyIndex, index)
}

// IndexFromContext extracts the asset index, if present.
func IndexFromContext(ctx context.Context) (int, bool) {
	index, ok := ctx.Value(contextKeyIndex).(int)
	return index, ok
}

// WithStage attaches a pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, contextKeyStage, stage)
}

// StageFromContext extracts the stage name, if present.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(contextKeyStage).(string)
	return stage, ok && stage != ""
}

// WithRequestID attaches a correlation identifier to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext extracts the correlation identifier, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyRequestID).(string)
	return id, ok && id != ""
}
