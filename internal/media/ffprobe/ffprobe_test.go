package ffprobe

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"cratesync/internal/services"
)

const sampleReport = `{
  "streams": [
    {"index": 0, "codec_name": "mp3", "codec_type": "audio", "bit_rate": "320000", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "a.mp3", "nb_streams": 1, "duration": "201.5", "bit_rate": "321045", "format_name": "mp3"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 201.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.BitRate() != 321045 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
	if result.AudioBitRate() != 320000 {
		t.Fatalf("unexpected stream bitrate: %d", result.AudioBitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", BitRate: "N/A"}},
		Format:  Format{Duration: "bad", BitRate: "nope"},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
	if result.AudioBitRate() != 0 {
		t.Fatalf("expected stream bitrate 0, got %d", result.AudioBitRate())
	}
}

func TestInspectUsesRunner(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, binary string, args ...string) ([]byte, error) {
		if binary != "ffprobe" {
			t.Fatalf("unexpected binary %q", binary)
		}
		gotArgs = args
		return []byte(sampleReport), nil
	}
	result, err := Inspect(context.Background(), run, "", "/music/a.mp3")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if result.Format.FormatName != "mp3" {
		t.Fatalf("unexpected format %q", result.Format.FormatName)
	}
	if len(gotArgs) == 0 || gotArgs[len(gotArgs)-1] != "/music/a.mp3" || !slices.Contains(gotArgs, "-show_streams") {
		t.Fatalf("unexpected args %v", gotArgs)
	}
}

func TestInspectWrapsToolFailure(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	if _, err := Inspect(context.Background(), run, "ffprobe", "/music/a.mp3"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := Inspect(context.Background(), run, "ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
