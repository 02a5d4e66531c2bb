package markers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

type vorbisContainer struct {
	fields fieldStore
}

func (vorbisContainer) Kind() Kind { return KindVorbis }

func (c vorbisContainer) Extract(path string) (Markers, error) {
	fields, err := c.fields.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read vorbis comments: %w", err)
	}
	out := Markers{}
	var errs []error
	for _, sf := range seratoFields {
		raw, ok := firstValue(fields, sf.vorbis)
		if !ok {
			continue
		}
		data, err := decodeBase64(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sf.vorbis, err))
			continue
		}
		out[sf.name] = data
	}
	for _, df := range descriptiveFields {
		if v, ok := firstValue(fields, append([]string{df.field}, df.aliases...)...); ok {
			if v = stripNUL(v); v != "" {
				out[df.name] = []byte(v)
			}
		}
	}
	return out, errors.Join(errs...)
}

func (c vorbisContainer) Inject(path string, m Markers) error {
	update := make(map[string][]string, len(m))
	for _, name := range m.Names() {
		value := m[name]
		if key, ok := vorbisSeratoKey(name); ok {
			update[key] = []string{base64.StdEncoding.EncodeToString(value)}
			continue
		}
		if field, ok := descriptiveField(name); ok {
			update[field] = []string{string(value)}
		}
	}
	if len(update) == 0 {
		return nil
	}
	if err := c.fields.Write(path, update); err != nil {
		return fmt.Errorf("write vorbis comments: %w", err)
	}
	return nil
}

// vorbisSeratoKey maps a Serato object name to its comment field. Objects
// without a known field are stored under their name, upper-cased with
// underscores.
func vorbisSeratoKey(name string) (string, bool) {
	if !IsSerato(name) {
		return "", false
	}
	for _, sf := range seratoFields {
		if sf.name == name {
			return sf.vorbis, true
		}
	}
	return strings.ToUpper(strings.ReplaceAll(name, " ", "_")), true
}

func descriptiveField(name string) (string, bool) {
	for _, df := range descriptiveFields {
		if df.name == name {
			return df.field, true
		}
	}
	return "", false
}

// decodeBase64 accepts padded and unpadded input with stray whitespace.
func decodeBase64(raw string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, raw)
	if data, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
}
