package markers

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"golang.org/x/text/encoding/unicode"
)

const (
	geobID     = "GEOB"
	pcntID     = "PCNT"
	popmID     = "POPM"
	commID     = "COMM"
	geobMIME   = "application/octet-stream"
	popmEmail  = "no@email"
	commentLng = "eng"
)

var id3TextFrames = []string{TagKey, TagBPM, TagComposer, TagGrouping, TagGenre, TagLabel}

type id3Container struct{}

func (id3Container) Kind() Kind { return KindID3 }

func (id3Container) Extract(path string) (Markers, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	out := Markers{}
	var errs []error
	for _, f := range tag.GetFrames(geobID) {
		uf, ok := f.(id3v2.UnknownFrame)
		if !ok {
			continue
		}
		obj, err := parseGEOB(uf.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if IsSerato(obj.description) {
			out[obj.description] = obj.data
		}
	}

	for _, id := range id3TextFrames {
		if text := stripNUL(tag.GetTextFrame(id).Text); text != "" {
			out[id] = []byte(text)
		}
	}
	for _, f := range tag.GetFrames(commID) {
		if cf, ok := f.(id3v2.CommentFrame); ok {
			if text := stripNUL(cf.Text); text != "" {
				out[TagComment] = []byte(text)
				break
			}
		}
	}
	for _, f := range tag.GetFrames(popmID) {
		if pf, ok := f.(id3v2.PopularimeterFrame); ok && pf.Rating > 0 {
			out[TagRating] = []byte(strconv.Itoa(int(pf.Rating)))
			break
		}
	}
	for _, f := range tag.GetFrames(pcntID) {
		if uf, ok := f.(id3v2.UnknownFrame); ok && len(uf.Body) > 0 {
			out[TagPlays] = []byte(new(big.Int).SetBytes(uf.Body).String())
			break
		}
	}
	return out, errors.Join(errs...)
}

func (id3Container) Inject(path string, m Markers) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()
	tag.SetVersion(4)

	// Rebuild the GEOB set so objects we write replace same-named ones.
	existing := tag.GetFrames(geobID)
	tag.DeleteFrames(geobID)
	for _, f := range existing {
		uf, ok := f.(id3v2.UnknownFrame)
		if !ok {
			continue
		}
		obj, err := parseGEOB(uf.Body)
		if err != nil {
			continue
		}
		if _, replaced := m[obj.description]; replaced {
			continue
		}
		tag.AddFrame(geobID, obj)
	}

	for _, name := range m.Names() {
		value := m[name]
		switch {
		case IsSerato(name):
			tag.AddFrame(geobID, geobFrame{mime: geobMIME, description: name, data: value})
		case name == TagComment:
			tag.DeleteFrames(commID)
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: commentLng,
				Text:     string(value),
			})
		case name == TagRating:
			rating, err := strconv.Atoi(strings.TrimSpace(string(value)))
			if err != nil || rating < 0 || rating > 255 {
				continue
			}
			tag.DeleteFrames(popmID)
			tag.AddFrame(popmID, id3v2.PopularimeterFrame{Email: popmEmail, Rating: uint8(rating), Counter: big.NewInt(0)})
		case name == TagPlays:
			count, ok := new(big.Int).SetString(strings.TrimSpace(string(value)), 10)
			if !ok || count.Sign() < 0 {
				continue
			}
			tag.DeleteFrames(pcntID)
			tag.AddFrame(pcntID, playCountFrame{count: count})
		case isID3TextFrame(name):
			tag.AddTextFrame(name, id3v2.EncodingUTF8, string(value))
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

func isID3TextFrame(name string) bool {
	for _, id := range id3TextFrames {
		if id == name {
			return true
		}
	}
	return false
}

// geobFrame is an ID3v2 general encapsulated object.
type geobFrame struct {
	encoding    byte
	mime        string
	filename    string
	description string
	data        []byte
}

func (g geobFrame) body() []byte {
	enc := g.encoding
	if enc == 1 || enc == 2 || (enc == 0 && !isASCII(g.description+g.filename)) {
		enc = 3
	}
	var buf bytes.Buffer
	buf.WriteByte(enc)
	buf.WriteString(g.mime)
	buf.WriteByte(0)
	buf.WriteString(g.filename)
	buf.WriteByte(0)
	buf.WriteString(g.description)
	buf.WriteByte(0)
	buf.Write(g.data)
	return buf.Bytes()
}

func (g geobFrame) Size() int { return len(g.body()) }

func (g geobFrame) UniqueIdentifier() string { return g.description }

func (g geobFrame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(g.body())
	return int64(n), err
}

// parseGEOB decodes a GEOB frame body. Only the descriptive strings depend on
// the text encoding byte; the MIME type is always Latin-1.
func parseGEOB(body []byte) (geobFrame, error) {
	if len(body) < 1 {
		return geobFrame{}, errors.New("empty GEOB frame")
	}
	enc := body[0]
	rest := body[1:]
	mime, rest, ok := cutTerminated(rest, 1)
	if !ok {
		return geobFrame{}, errors.New("GEOB frame: unterminated mime type")
	}
	width := 1
	if enc == 1 || enc == 2 {
		width = 2
	}
	rawName, rest, ok := cutTerminated(rest, width)
	if !ok {
		return geobFrame{}, errors.New("GEOB frame: unterminated filename")
	}
	rawDesc, rest, ok := cutTerminated(rest, width)
	if !ok {
		return geobFrame{}, errors.New("GEOB frame: unterminated description")
	}
	filename, err := decodeID3Text(enc, rawName)
	if err != nil {
		return geobFrame{}, err
	}
	description, err := decodeID3Text(enc, rawDesc)
	if err != nil {
		return geobFrame{}, err
	}
	return geobFrame{
		encoding:    enc,
		mime:        string(mime),
		filename:    filename,
		description: description,
		data:        append([]byte(nil), rest...),
	}, nil
}

// cutTerminated splits b at the first terminator of the given code unit width.
func cutTerminated(b []byte, width int) ([]byte, []byte, bool) {
	for i := 0; i+width <= len(b); i += width {
		if width == 1 && b[i] == 0 {
			return b[:i], b[i+1:], true
		}
		if width == 2 && b[i] == 0 && b[i+1] == 0 {
			return b[:i], b[i+2:], true
		}
	}
	return nil, nil, false
}

func decodeID3Text(enc byte, raw []byte) (string, error) {
	switch enc {
	case 1:
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode UTF-16 text: %w", err)
		}
		return string(decoded), nil
	case 2:
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode UTF-16BE text: %w", err)
		}
		return string(decoded), nil
	default:
		return string(raw), nil
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// playCountFrame is an ID3v2 PCNT frame: a big-endian counter of at least
// four bytes.
type playCountFrame struct {
	count *big.Int
}

func (p playCountFrame) body() []byte {
	raw := p.count.Bytes()
	if len(raw) >= 4 {
		return raw
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(p.count.Uint64()))
	return out
}

func (p playCountFrame) Size() int { return len(p.body()) }

func (p playCountFrame) UniqueIdentifier() string { return "" }

func (p playCountFrame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.body())
	return int64(n), err
}
