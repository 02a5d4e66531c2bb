package daemonrun

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratesync/internal/logging"
	"cratesync/internal/services"
	"cratesync/internal/testsupport"
)

func TestOpenBuildsRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	rt, err := Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rt.Close()
	if rt.Engine == nil || rt.Catalog == nil || rt.Downloader == nil {
		t.Fatalf("incomplete runtime: %+v", rt)
	}
}

func TestOpenWithoutClientID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tidal.ClientID = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	_, err := Open(cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cratesync.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		t.Fatal("empty pid file")
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
