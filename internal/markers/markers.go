package markers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Markers maps a normalized tag name to its raw value.
type Markers map[string][]byte

// Names returns the marker names in sorted order.
func (m Markers) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serato object names, as used in ID3 GEOB descriptions.
const (
	SeratoAnalysis = "Serato Analysis"
	SeratoAutotags = "Serato Autotags"
	SeratoBeatGrid = "Serato BeatGrid"
	SeratoMarkers  = "Serato Markers_"
	SeratoMarkers2 = "Serato Markers2"
	SeratoOverview = "Serato Overview"
	SeratoOffsets  = "Serato Offsets_"
	SeratoRelVol   = "Serato RelVolAd"
	SeratoVidAssoc = "Serato VidAssoc"
)

// Descriptive tag names, as used in ID3 frame ids.
const (
	TagKey      = "TKEY"
	TagBPM      = "TBPM"
	TagComposer = "TCOM"
	TagGrouping = "TIT1"
	TagComment  = "COMM"
	TagGenre    = "TCON"
	TagLabel    = "TPUB"
	TagRating   = "RATING"
	TagPlays    = "PCNT"
)

// seratoField lists where each Serato object lives in the text containers:
// the Vorbis comment key and the name of the MP4 freeform item under the
// com.serato.dj namespace.
type seratoField struct {
	name   string
	vorbis string
	atom   string
}

var seratoFields = []seratoField{
	{name: SeratoAnalysis, vorbis: "SERATO_ANALYSIS", atom: "analysisVersion"},
	{name: SeratoAutotags, vorbis: "SERATO_AUTOGAIN", atom: "autgain"},
	{name: SeratoBeatGrid, vorbis: "SERATO_BEATGRID", atom: "beatgrid"},
	{name: SeratoMarkers, vorbis: "SERATO_MARKERS", atom: "markers"},
	{name: SeratoMarkers2, vorbis: "SERATO_MARKERS_V2", atom: "markersv2"},
	{name: SeratoOverview, vorbis: "SERATO_OVERVIEW", atom: "overview"},
	{name: SeratoOffsets, vorbis: "SERATO_OFFSETS", atom: "offsets"},
	{name: SeratoRelVol, vorbis: "SERATO_RELVOL", atom: "relvol"},
	{name: SeratoVidAssoc, vorbis: "SERATO_VIDEO_ASSOC", atom: "videoassociation"},
}

// descriptiveFields maps descriptive names to Vorbis/MP4 property keys. Extra
// keys are accepted on read.
var descriptiveFields = []struct {
	name    string
	field   string
	aliases []string
}{
	{name: TagKey, field: "INITIALKEY", aliases: []string{"KEY"}},
	{name: TagBPM, field: "BPM"},
	{name: TagComposer, field: "COMPOSER"},
	{name: TagGrouping, field: "GROUPING"},
	{name: TagComment, field: "COMMENT"},
	{name: TagGenre, field: "GENRE"},
	{name: TagLabel, field: "LABEL"},
	{name: TagRating, field: "RATING"},
	{name: TagPlays, field: "PLAYCOUNT"},
}

// IsSerato reports whether a marker name is a Serato object.
func IsSerato(name string) bool {
	return strings.HasPrefix(name, "Serato")
}

// Kind identifies a container family.
type Kind int

const (
	KindUnknown Kind = iota
	KindID3
	KindVorbis
	KindAtom
)

func (k Kind) String() string {
	switch k {
	case KindID3:
		return "id3"
	case KindVorbis:
		return "vorbis"
	case KindAtom:
		return "atom"
	default:
		return "unknown"
	}
}

// ErrUnsupported marks files whose container cannot carry markers.
var ErrUnsupported = errors.New("unsupported audio container")

// Container reads and writes markers for one container family.
type Container interface {
	Kind() Kind
	Extract(path string) (Markers, error)
	Inject(path string, m Markers) error
}

// Detect returns the container for path, sniffing magic bytes first and
// falling back to the file extension.
func Detect(path string) (Container, error) {
	return detectWith(path, defaultBackend())
}

func detectWith(path string, b backend) (Container, error) {
	kind, err := sniff(path)
	if err != nil {
		return nil, err
	}
	if kind == KindUnknown {
		kind = kindFromExtension(path)
	}
	switch kind {
	case KindID3:
		return id3Container{}, nil
	case KindVorbis:
		return vorbisContainer{fields: b.fields}, nil
	case KindAtom:
		return atomContainer{fields: b.fields, freeform: b.freeform}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

func sniff(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindUnknown, err
	}
	return sniffBytes(head[:n]), nil
}

func sniffBytes(head []byte) Kind {
	switch {
	case len(head) >= 3 && string(head[:3]) == "ID3":
		return KindID3
	case len(head) >= 4 && (string(head[:4]) == "fLaC" || string(head[:4]) == "OggS"):
		return KindVorbis
	case len(head) >= 8 && string(head[4:8]) == "ftyp":
		return KindAtom
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return KindID3
	}
	return KindUnknown
}

func kindFromExtension(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return KindID3
	case ".flac", ".ogg", ".opus":
		return KindVorbis
	case ".m4a", ".mp4", ".alac", ".aac":
		return KindAtom
	}
	return KindUnknown
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
