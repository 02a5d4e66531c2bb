package crate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"cratesync/internal/services"
)

const (
	headerLen = 8

	tagVersion = "vrsn"
	tagTrack   = "otrk"
	tagPath    = "ptrk"

	defaultVersion = "1.0/Serato ScratchLive Crate"
)

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Track is one entry of a crate.
type Track struct {
	Path string
}

// MalformedError reports where a block stream stopped making sense.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed crate at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return services.ErrMalformed }

type block struct {
	tag   string
	start int
	end   int
	value []byte
}

func readBlock(data []byte, off int) (block, error) {
	if len(data)-off < headerLen {
		return block{}, &MalformedError{Offset: off, Reason: "truncated block header"}
	}
	length := binary.BigEndian.Uint32(data[off+4 : off+headerLen])
	remaining := len(data) - off - headerLen
	if uint64(length) > uint64(remaining) {
		return block{}, &MalformedError{Offset: off, Reason: fmt.Sprintf("block %q declares %d bytes, %d remain", decodeTag(data[off:off+4]), length, remaining)}
	}
	end := off + headerLen + int(length)
	return block{
		tag:   decodeTag(data[off : off+4]),
		start: off,
		end:   end,
		value: data[off+headerLen : end],
	}, nil
}

// decodeTag renders a tag as ASCII, substituting '?' for anything unprintable.
func decodeTag(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c < 0x20 || c > 0x7e {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func appendBlock(dst []byte, tag string, value []byte) []byte {
	var header [headerLen]byte
	copy(header[:4], tag)
	binary.BigEndian.PutUint32(header[4:], uint32(len(value)))
	dst = append(dst, header[:]...)
	return append(dst, value...)
}

func decodePath(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("odd UTF-16 payload length %d", len(raw))
	}
	decoded, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(decoded), "\x00"), nil
}

func encodePath(path string) ([]byte, error) {
	encoded, err := utf16be.NewEncoder().Bytes([]byte(stripSeparator(path)))
	if err != nil {
		return nil, fmt.Errorf("encode crate path %q: %w", path, err)
	}
	if len(encoded) > math.MaxUint32-2*headerLen {
		return nil, fmt.Errorf("crate path %q too long", path)
	}
	return encoded, nil
}

func stripSeparator(path string) string {
	return strings.TrimPrefix(path, "/")
}

// trackPaths returns the decoded ptrk values nested in one otrk value.
func trackPaths(value []byte, base int) ([]string, error) {
	var paths []string
	for off := 0; off < len(value); {
		child, err := readBlock(value, off)
		if err != nil {
			var malformed *MalformedError
			if errors.As(err, &malformed) {
				malformed.Offset += base
			}
			return paths, err
		}
		if child.tag == tagPath {
			path, err := decodePath(child.value)
			if err != nil {
				return paths, &MalformedError{Offset: base + off, Reason: err.Error()}
			}
			paths = append(paths, path)
		}
		off = child.end
	}
	return paths, nil
}

// Parse lists the tracks of a crate in file order. On a truncated or corrupt
// stream it returns the tracks read before the damage together with a
// *MalformedError; callers may use the partial list but must not write it back.
func Parse(data []byte) ([]Track, error) {
	var tracks []Track
	for off := 0; off < len(data); {
		b, err := readBlock(data, off)
		if err != nil {
			return tracks, err
		}
		if b.tag == tagTrack {
			paths, err := trackPaths(b.value, off+headerLen)
			for _, p := range paths {
				tracks = append(tracks, Track{Path: p})
			}
			if err != nil {
				return tracks, err
			}
		}
		off = b.end
	}
	return tracks, nil
}

// ReplacePath rewrites every track whose location equals oldPath (ignoring a
// leading separator on either side) to newPath. The returned buffer differs
// from data only inside the rewritten ptrk payloads and the length fields of
// their blocks. When nothing matches, data itself is returned with false.
func ReplacePath(data []byte, oldPath, newPath string) ([]byte, bool, error) {
	if _, err := Parse(data); err != nil {
		return data, false, err
	}
	encoded, err := encodePath(newPath)
	if err != nil {
		return data, false, err
	}
	want := stripSeparator(oldPath)

	out := make([]byte, 0, len(data)+len(encoded))
	changed := false
	for off := 0; off < len(data); {
		b, _ := readBlock(data, off)
		if b.tag == tagTrack {
			if value, hit := rewriteTrack(b.value, want, encoded); hit {
				out = appendBlock(out, tagTrack, value)
				changed = true
				off = b.end
				continue
			}
		}
		out = append(out, data[b.start:b.end]...)
		off = b.end
	}
	if !changed {
		return data, false, nil
	}
	return out, true, nil
}

func rewriteTrack(value []byte, want string, encoded []byte) ([]byte, bool) {
	out := make([]byte, 0, len(value)+len(encoded))
	hit := false
	for off := 0; off < len(value); {
		child, _ := readBlock(value, off)
		if child.tag == tagPath {
			if path, err := decodePath(child.value); err == nil && stripSeparator(path) == want {
				out = appendBlock(out, tagPath, encoded)
				hit = true
				off = child.end
				continue
			}
		}
		out = append(out, value[child.start:child.end]...)
		off = child.end
	}
	return out, hit
}

// AppendTrack adds a minimal otrk{ptrk} entry for path. It reports false
// without touching data when the crate already lists the path, so retries
// after an interrupted recovery do not duplicate entries.
func AppendTrack(data []byte, path string) ([]byte, bool, error) {
	tracks, err := Parse(data)
	if err != nil {
		return data, false, err
	}
	want := stripSeparator(path)
	for _, t := range tracks {
		if stripSeparator(t.Path) == want {
			return data, false, nil
		}
	}
	entry, err := encodeTrack(path)
	if err != nil {
		return data, false, err
	}
	out := make([]byte, 0, len(data)+len(entry))
	out = append(out, data...)
	return append(out, entry...), true, nil
}

func encodeTrack(path string) ([]byte, error) {
	encoded, err := encodePath(path)
	if err != nil {
		return nil, err
	}
	return appendBlock(nil, tagTrack, appendBlock(nil, tagPath, encoded)), nil
}

// New builds a crate holding a version header and the given tracks.
func New(paths ...string) ([]byte, error) {
	version, err := utf16be.NewEncoder().Bytes([]byte(defaultVersion))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(appendBlock(nil, tagVersion, version))
	for _, p := range paths {
		entry, err := encodeTrack(p)
		if err != nil {
			return nil, err
		}
		buf.Write(entry)
	}
	return buf.Bytes(), nil
}
