package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	stageKey  contextKey = "stage"
	mirrorKey contextKey = "mirror"
	trackKey  contextKey = "track"
)

// WithRunID annotates context with the identifier of one sync or recover pass.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the pass identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithStage annotates context with the reconciliation stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithMirror annotates context with the crate name being reconciled.
func WithMirror(ctx context.Context, name string) context.Context {
	return withString(ctx, mirrorKey, name)
}

// MirrorFromContext returns the crate name if present.
func MirrorFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, mirrorKey)
}

// WithTrack annotates context with a track mapping key.
func WithTrack(ctx context.Context, key string) context.Context {
	return withString(ctx, trackKey, key)
}

// TrackFromContext returns the track mapping key if present.
func TrackFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, trackKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
