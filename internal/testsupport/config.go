package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"cratesync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The volume root is the temp base, so crate keys resolve inside it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SeratoDir = filepath.Join(base, "_Serato_")
	cfgVal.Paths.VolumeRoot = base
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Tidal.ClientID = "test-client"
	cfgVal.Tidal.TokenFile = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := os.MkdirAll(filepath.Join(cfgVal.Paths.SeratoDir, "Subcrates"), 0o755); err != nil {
		t.Fatalf("mkdir serato dir: %v", err)
	}

	return builder.cfg
}

// WithMaxBitrate sets the sync bitrate ceiling on the test config.
func WithMaxBitrate(kbps int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.MaxBitrate = kbps
	}
}

// WithAPIBaseURL points the Tidal client at a test server.
func WithAPIBaseURL(apiURL, authURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tidal.APIBaseURL = apiURL
		b.cfg.Tidal.AuthBaseURL = authURL
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"tidal-dl-ng", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.VolumeRoot
}

// CratePath returns the location of a subcrate file for the given crate name.
func CratePath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Paths.SeratoDir, "Subcrates", name+".crate")
}
