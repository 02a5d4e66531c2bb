package markers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.senan.xyz/taglib"
)

func copyFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture copy: %v", err)
	}
	return path
}

// fullMarkers carries every Serato object and a fractional BPM.
func fullMarkers() Markers {
	m := Markers{
		TagKey:     []byte("8A"),
		TagBPM:     []byte("124.50"),
		TagComment: []byte("warmup"),
		TagGenre:   []byte("House"),
		TagPlays:   []byte("12"),
	}
	for i, sf := range seratoFields {
		if sf.name == SeratoRelVol {
			m[sf.name] = []byte("0.000000")
			continue
		}
		m[sf.name] = append([]byte{0x01, byte(i)}, bytes.Repeat([]byte{0x00, 0x7F, byte(i)}, 40)...)
	}
	return m
}

func TestRoundTripThroughRealFiles(t *testing.T) {
	cases := []struct {
		fixture string
		kind    Kind
	}{
		{"eg.mp3", KindID3},
		{"eg.flac", KindVorbis},
		{"eg.m4a", KindAtom},
	}
	for _, tc := range cases {
		t.Run(tc.fixture, func(t *testing.T) {
			path := copyFixture(t, tc.fixture)
			tr := NewTransplanter(nil)
			want := fullMarkers()

			if res := tr.Inject(want, path); !res.Injected || res.Kind != tc.kind || res.Err != nil {
				t.Fatalf("inject: %#v", res)
			}
			got := tr.Extract(path)
			if !got.OK || got.Err != nil {
				t.Fatalf("extract: %#v", got)
			}
			assertMarkers(t, got.Markers, want)

			if _, err := taglib.ReadProperties(path); err != nil {
				t.Fatalf("file no longer readable: %v", err)
			}
		})
	}
}

func TestRoundTripAcrossRealContainers(t *testing.T) {
	tr := NewTransplanter(nil)
	mp3 := copyFixture(t, "eg.mp3")
	flac := copyFixture(t, "eg.flac")
	m4a := copyFixture(t, "eg.m4a")

	want := fullMarkers()
	if res := tr.Inject(want, mp3); !res.Injected {
		t.Fatalf("seed mp3: %#v", res)
	}
	for _, target := range []string{flac, m4a} {
		if res := tr.Inject(tr.Extract(mp3).Markers, target); !res.Injected {
			t.Fatalf("inject %s: %#v", filepath.Base(target), res)
		}
		assertMarkers(t, tr.Extract(target).Markers, want)
	}
}

func TestM4AMarkersUseSeratoNamespace(t *testing.T) {
	path := copyFixture(t, "eg.m4a")
	tr := NewTransplanter(nil)
	if res := tr.Inject(Markers{SeratoMarkers2: []byte{0x01, 0x01}}, path); !res.Injected {
		t.Fatalf("inject: %#v", res)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(data, []byte("mean\x00\x00\x00\x00com.serato.dj")) {
		t.Fatal("expected a com.serato.dj mean atom")
	}
	if !bytes.Contains(data, []byte("name\x00\x00\x00\x00markersv2")) {
		t.Fatal("expected a markersv2 name atom")
	}
	if bytes.Contains(data, []byte("SERATO_")) {
		t.Fatal("Serato objects must not be written as iTunes properties")
	}

	// Items written by the tag library on a later pass leave them in place.
	if err := (taglibStore{}).Write(path, map[string][]string{"GENRE": {"Techno"}}); err != nil {
		t.Fatalf("write genre: %v", err)
	}
	got := tr.Extract(path)
	if !bytes.Equal(got.Markers[SeratoMarkers2], []byte{0x01, 0x01}) || string(got.Markers[TagGenre]) != "Techno" {
		t.Fatalf("unexpected markers after retag: %q", got.Markers)
	}
}
