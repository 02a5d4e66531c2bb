package logging

import (
	"context"
	"log/slog"

	"cratesync/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a record for filtering (e.g. "search_miss").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID identifies one sync or recover pass.
	FieldRunID = "run_id"
	// FieldMirror is the crate name of the mirror being processed.
	FieldMirror = "mirror"
	// FieldTrack is the mapping key of the track being processed.
	FieldTrack = "track"
	// FieldStage is the reconciliation stage (sync, recover, cleanup).
	FieldStage = "stage"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if mirror, ok := services.MirrorFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMirror, mirror))
	}
	if track, ok := services.TrackFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTrack, track))
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
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
