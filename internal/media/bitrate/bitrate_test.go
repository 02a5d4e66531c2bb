package bitrate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cratesync/internal/testsupport"
)

func report(format, stream string) []byte {
	return []byte(`{"streams":[{"codec_type":"audio","bit_rate":"` + stream + `"}],"format":{"bit_rate":"` + format + `"}}`)
}

func TestBitrateFallbackChain(t *testing.T) {
	failing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("ffprobe missing")
	}
	cases := []struct {
		name      string
		path      string
		output    []byte
		failProbe bool
		props     int
		assume    int
		want      int
		wantOK    bool
	}{
		{name: "format bitrate", path: "a.mp3", output: report("320000", "0"), want: 320, wantOK: true},
		{name: "stream bitrate", path: "a.mp3", output: report("", "256000"), want: 256, wantOK: true},
		{name: "rounds to nearest kbps", path: "a.mp3", output: report("191600", ""), want: 192, wantOK: true},
		{name: "taglib fallback", path: "a.m4a", output: report("", ""), props: 260, want: 260, wantOK: true},
		{name: "probe failure then taglib", path: "a.mp3", failProbe: true, props: 128, want: 128, wantOK: true},
		{name: "lossless assumption", path: "a.FLAC", output: report("", ""), assume: 1411, want: 1411, wantOK: true},
		{name: "lossless disabled", path: "a.flac", output: report("", ""), assume: 0, wantOK: false},
		{name: "unknown mp3", path: "a.mp3", output: report("N/A", "N/A"), assume: 1411, wantOK: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			cfg.Recovery.AssumeLosslessBitrate = tc.assume
			run := func(context.Context, string, ...string) ([]byte, error) { return tc.output, nil }
			if tc.failProbe {
				run = failing
			}
			p := NewProber(cfg, nil,
				WithRunner(run),
				WithProperties(func(string) (int, error) { return tc.props, nil }),
			)
			got, ok := p.Bitrate(context.Background(), tc.path)
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("Bitrate = %d, %v; want %d, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestBitrateEstimatedFromDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "Music", "a.mp3")
	// 40000 bytes over 2 seconds is 160 kbps.
	testsupport.WriteFile(t, path, 40000)
	output := []byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"2.0"}}`)
	p := NewProber(cfg, nil,
		WithRunner(func(context.Context, string, ...string) ([]byte, error) { return output, nil }),
		WithProperties(func(string) (int, error) { return 0, nil }),
	)
	got, ok := p.Bitrate(context.Background(), path)
	if !ok || got != 160 {
		t.Fatalf("Bitrate = %d, %v; want 160, true", got, ok)
	}
}

func TestBitrateIgnoresFilesWithoutAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	output := []byte(`{"streams":[{"codec_type":"video","bit_rate":"900000"}],"format":{"bit_rate":"900000"}}`)
	p := NewProber(cfg, nil,
		WithRunner(func(context.Context, string, ...string) ([]byte, error) { return output, nil }),
		WithProperties(func(string) (int, error) { return 0, nil }),
	)
	if got, ok := p.Bitrate(context.Background(), "cover.mp4"); ok {
		t.Fatalf("expected no bitrate for a file without audio, got %d", got)
	}
}
