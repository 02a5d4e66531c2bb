package staging

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotNewSince(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Artist", "old.flac")
	writeAged(t, existing, time.Hour)
	writeAged(t, filepath.Join(dir, "notes.txt"), time.Hour)

	before, err := TakeSnapshot(dir, audioExts)
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected only the audio file, got %v", before)
	}

	added := filepath.Join(dir, "Artist", "Album", "new.FLAC")
	writeAged(t, added, 0)
	writeAged(t, filepath.Join(dir, ".hidden.flac"), 0)
	writeAged(t, filepath.Join(dir, ".cache", "inside.flac"), 0)

	after, err := TakeSnapshot(dir, audioExts)
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}
	got := after.NewSince(before)
	if len(got) != 1 || got[0] != added {
		t.Fatalf("NewSince = %v, want [%s]", got, added)
	}
}

func TestSnapshotMissingDirectory(t *testing.T) {
	snap, err := TakeSnapshot(filepath.Join(t.TempDir(), "absent"), audioExts)
	if err != nil || len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v, %v", snap, err)
	}
}

func TestFindCandidate(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, filepath.Join(dir, "A", "Original Stem.flac"), 0)
	writeAged(t, filepath.Join(dir, "B", "01 - Róisín Murphy - Overpowered.flac"), 0)
	writeAged(t, filepath.Join(dir, "C", "Daft Punk - One More Tim.m4a"), 0)

	cases := []struct {
		name        string
		stem        string
		displayName string
		wantBase    string
		wantRule    string
	}{
		{"exact stem", "Original Stem", "Somebody - Something", "Original Stem.flac", "stem"},
		{"folded containment", "missing", "Roisin Murphy - Overpowered", "01 - Róisín Murphy - Overpowered.flac", "contains"},
		{"similarity", "missing", "Daft Punk - One More Time", "Daft Punk - One More Tim.m4a", "similar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := FindCandidate(dir, audioExts, tc.stem, tc.displayName)
			if !ok {
				t.Fatal("expected a candidate")
			}
			if filepath.Base(m.Path) != tc.wantBase || m.Rule != tc.wantRule {
				t.Fatalf("unexpected match %#v", m)
			}
		})
	}

	if _, ok := FindCandidate(dir, audioExts, "missing", "Completely Unrelated Song"); ok {
		t.Fatal("expected no candidate for unrelated name")
	}
	if _, ok := FindCandidate(dir, audioExts, "missing", ""); ok {
		t.Fatal("expected no candidate without a display name")
	}
}
