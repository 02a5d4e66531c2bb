package services_test

import (
	"context"
	"testing"

	"cratesync/internal/services"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "abc")
	ctx = services.WithStage(ctx, "sync")
	ctx = services.WithMirror(ctx, "Techno")
	ctx = services.WithTrack(ctx, "Music/x.flac")

	if v, ok := services.RunIDFromContext(ctx); !ok || v != "abc" {
		t.Fatalf("unexpected run id %q", v)
	}
	if v, ok := services.StageFromContext(ctx); !ok || v != "sync" {
		t.Fatalf("unexpected stage %q", v)
	}
	if v, ok := services.MirrorFromContext(ctx); !ok || v != "Techno" {
		t.Fatalf("unexpected mirror %q", v)
	}
	if v, ok := services.TrackFromContext(ctx); !ok || v != "Music/x.flac" {
		t.Fatalf("unexpected track %q", v)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := services.WithMirror(context.Background(), "")
	if _, ok := services.MirrorFromContext(ctx); ok {
		t.Fatal("expected empty mirror to be ignored")
	}
}
