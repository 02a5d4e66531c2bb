package crate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"

	"cratesync/internal/services"
)

func rawBlock(tag string, parts ...[]byte) []byte {
	value := bytes.Join(parts, nil)
	out := make([]byte, 8, 8+len(value))
	copy(out, tag)
	binary.BigEndian.PutUint32(out[4:], uint32(len(value)))
	return append(out, value...)
}

func utf16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = binary.BigEndian.AppendUint16(out, u)
	}
	return out
}

func trackEntry(path string, extra ...[]byte) []byte {
	parts := append([][]byte{}, extra...)
	parts = append(parts, rawBlock("ptrk", utf16BE(path)))
	return rawBlock("otrk", parts...)
}

func sampleCrate() []byte {
	return bytes.Join([][]byte{
		rawBlock("vrsn", utf16BE("1.0/Serato ScratchLive Crate")),
		rawBlock("osrt", rawBlock("tvcn", utf16BE("song")), rawBlock("brev", []byte{0})),
		rawBlock("ovct", rawBlock("tvcn", utf16BE("artist")), rawBlock("tvcw", utf16BE("0"))),
		trackEntry("Users/dj/Music/one.mp3"),
		trackEntry("Users/dj/Music/Beyoncé - two.flac", rawBlock("tadd", []byte{1, 2, 3, 4})),
		trackEntry("Users/dj/Music/three.m4a"),
	}, nil)
}

func paths(tracks []Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Path)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseListsTracksInOrder(t *testing.T) {
	tracks, err := Parse(sampleCrate())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []string{"Users/dj/Music/one.mp3", "Users/dj/Music/Beyoncé - two.flac", "Users/dj/Music/three.m4a"}
	if got := paths(tracks); !equalStrings(got, want) {
		t.Fatalf("unexpected tracks: %v", got)
	}
}

func TestParseStripsTrailingNULAndToleratesOddTags(t *testing.T) {
	data := bytes.Join([][]byte{
		rawBlock("\x00\xffzz", []byte("ignored payload")),
		rawBlock("otrk", rawBlock("ptrk", append(utf16BE("a/b.mp3"), 0, 0, 0, 0))),
	}, nil)
	tracks, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := paths(tracks); !equalStrings(got, []string{"a/b.mp3"}) {
		t.Fatalf("unexpected tracks: %v", got)
	}
}

func TestParseTruncatedReturnsPartialResult(t *testing.T) {
	data := sampleCrate()
	last := trackEntry("Users/dj/Music/three.m4a")
	truncated := data[:len(data)-len(last)+10]

	tracks, err := Parse(truncated)
	if err == nil {
		t.Fatal("expected malformed error")
	}
	if !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	var malformed *MalformedError
	if !errors.As(err, &malformed) || malformed.Offset != len(data)-len(last) {
		t.Fatalf("unexpected malformed offset: %v", err)
	}
	if got := paths(tracks); len(got) != 2 {
		t.Fatalf("expected the two intact tracks, got %v", got)
	}
}

func TestParseNestedOverrunIsMalformed(t *testing.T) {
	inner := rawBlock("ptrk", utf16BE("x.mp3"))
	binary.BigEndian.PutUint32(inner[4:], 500)
	data := append(trackEntry("ok.mp3"), rawBlock("otrk", inner)...)

	tracks, err := Parse(data)
	if !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if got := paths(tracks); !equalStrings(got, []string{"ok.mp3"}) {
		t.Fatalf("unexpected partial tracks: %v", got)
	}
}

func TestReplacePathMissingIsIdentity(t *testing.T) {
	data := sampleCrate()
	original := append([]byte(nil), data...)

	out, changed, err := ReplacePath(data, "/Users/dj/Music/nope.mp3", "/Users/dj/Music/new.mp3")
	if err != nil {
		t.Fatalf("ReplacePath returned error: %v", err)
	}
	if changed {
		t.Fatal("expected no change")
	}
	if !bytes.Equal(out, original) || !bytes.Equal(data, original) {
		t.Fatal("expected byte-identical output and untouched input")
	}
}

func TestReplacePathRewritesOnlyMatchingEntry(t *testing.T) {
	data := sampleCrate()
	original := append([]byte(nil), data...)
	oldPath := "Users/dj/Music/Beyoncé - two.flac"
	newPath := "/Users/dj/Music/Beyoncé - two (Extended).flac"

	out, changed, err := ReplacePath(data, "/"+oldPath, newPath)
	if err != nil {
		t.Fatalf("ReplacePath returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	if !bytes.Equal(data, original) {
		t.Fatal("input buffer was modified")
	}

	tracks, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse of rewritten crate failed: %v", err)
	}
	want := []string{"Users/dj/Music/one.mp3", "Users/dj/Music/Beyoncé - two (Extended).flac", "Users/dj/Music/three.m4a"}
	if got := paths(tracks); !equalStrings(got, want) {
		t.Fatalf("unexpected tracks after rewrite: %v", got)
	}

	delta := len(utf16BE(newPath[1:])) - len(utf16BE(oldPath))
	if len(out)-len(original) != delta {
		t.Fatalf("length changed by %d, want %d", len(out)-len(original), delta)
	}

	prefixLen := bytes.Index(original, trackEntry(oldPath, rawBlock("tadd", []byte{1, 2, 3, 4})))
	if prefixLen <= 0 || !bytes.Equal(out[:prefixLen], original[:prefixLen]) {
		t.Fatal("bytes before the rewritten entry changed")
	}
	suffix := trackEntry("Users/dj/Music/three.m4a")
	if !bytes.HasSuffix(out, suffix) {
		t.Fatal("bytes after the rewritten entry changed")
	}
	if !bytes.Contains(out, rawBlock("tadd", []byte{1, 2, 3, 4})) {
		t.Fatal("sibling block inside the entry was lost")
	}
}

func TestReplacePathRefusesMalformedInput(t *testing.T) {
	data := sampleCrate()
	truncated := data[:len(data)-3]
	out, changed, err := ReplacePath(truncated, "Users/dj/Music/one.mp3", "x.mp3")
	if !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if changed || !bytes.Equal(out, truncated) {
		t.Fatal("malformed input must be returned untouched")
	}
}

func TestAppendTrack(t *testing.T) {
	data := sampleCrate()

	out, added, err := AppendTrack(data, "/Users/dj/Music/four.wav")
	if err != nil || !added {
		t.Fatalf("AppendTrack = %v, %v", added, err)
	}
	if !bytes.Equal(out[:len(data)], data) {
		t.Fatal("existing bytes changed on append")
	}
	if !bytes.Equal(out[len(data):], trackEntry("Users/dj/Music/four.wav")) {
		t.Fatal("appended entry has unexpected layout")
	}

	again, added, err := AppendTrack(out, "Users/dj/Music/four.wav")
	if err != nil {
		t.Fatalf("AppendTrack returned error: %v", err)
	}
	if added || !bytes.Equal(again, out) {
		t.Fatal("expected duplicate append to be a no-op")
	}
}

func TestAppendTrackToEmptyCrate(t *testing.T) {
	out, added, err := AppendTrack(nil, "a.mp3")
	if err != nil || !added {
		t.Fatalf("AppendTrack = %v, %v", added, err)
	}
	tracks, err := Parse(out)
	if err != nil || len(tracks) != 1 || tracks[0].Path != "a.mp3" {
		t.Fatalf("unexpected parse result %v, %v", tracks, err)
	}
}

func TestNewRoundTrips(t *testing.T) {
	data, err := New("/a/one.mp3", "b/two.mp3")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	tracks, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := paths(tracks); !equalStrings(got, []string{"a/one.mp3", "b/two.mp3"}) {
		t.Fatalf("unexpected tracks %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/Users/dj/a.mp3", "Users/dj/a.mp3", false},
		{"Users/dj/a.mp3", "Users/dj/a.mp3", false},
		{"//double.mp3", "/double.mp3", false},
		{`C:\Music\a.mp3`, "", true},
		{"D:/Music/a.mp3", "", true},
		{`Music\a.mp3`, "", true},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePath(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPath) || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("NormalizePath(%q) expected invalid path error, got %q, %v", tt.in, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("NormalizePath(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
