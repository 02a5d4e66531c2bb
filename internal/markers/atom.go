package markers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	atomMIME = "application/octet-stream"
	// atomPlayCount is the freeform name of the play count under the Serato
	// namespace.
	atomPlayCount = "playcount"
	// atomExactBPM keeps the BPM text that tmpo (an integer) cannot hold.
	atomExactBPM = "BPM"
)

// atomContainer stores Serato objects as com.serato.dj freeform items and
// descriptive tags through the TagLib property map.
type atomContainer struct {
	fields   fieldStore
	freeform freeformStore
}

func (atomContainer) Kind() Kind { return KindAtom }

func (c atomContainer) Extract(path string) (Markers, error) {
	fields, err := c.fields.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read mp4 atoms: %w", err)
	}
	var errs []error
	items, err := c.freeform.ReadFreeform(path)
	if err != nil {
		errs = append(errs, fmt.Errorf("read mp4 freeform atoms: %w", err))
	}
	serato := map[string][]byte{}
	exact := map[string][]byte{}
	for _, ff := range items {
		switch ff.mean {
		case seratoMean:
			serato[ff.name] = ff.value
		case exactMean:
			exact[ff.name] = ff.value
		}
	}

	out := Markers{}
	for _, sf := range seratoFields {
		raw, ok := serato[sf.atom]
		if !ok {
			continue
		}
		if sf.name == SeratoRelVol {
			out[sf.name] = append([]byte(nil), raw...)
			continue
		}
		data, err := decodeBase64(string(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sf.atom, err))
			continue
		}
		out[sf.name] = unwrapAtom(data)
	}
	if raw, ok := serato[atomPlayCount]; ok {
		if digits := strings.TrimSpace(stripNUL(string(raw))); digits != "" {
			out[TagPlays] = []byte(digits)
		}
	}
	for _, df := range descriptiveFields {
		if df.name == TagPlays {
			continue
		}
		if df.name == TagBPM {
			if v := stripNUL(string(exact[atomExactBPM])); v != "" {
				out[TagBPM] = []byte(v)
				continue
			}
		}
		if v, ok := firstValue(fields, append([]string{df.field}, df.aliases...)...); ok {
			if v = stripNUL(v); v != "" {
				out[df.name] = []byte(v)
			}
		}
	}
	return out, errors.Join(errs...)
}

func (c atomContainer) Inject(path string, m Markers) error {
	update := make(map[string][]string, len(m))
	var items []freeform
	for _, name := range m.Names() {
		value := m[name]
		switch {
		case name == SeratoRelVol:
			items = append(items, freeform{mean: seratoMean, name: atomKey(name), value: append([]byte(nil), value...)})
		case IsSerato(name):
			encoded := base64.StdEncoding.EncodeToString(wrapAtom(name, value))
			items = append(items, freeform{mean: seratoMean, name: atomKey(name), value: []byte(encoded)})
		case name == TagPlays:
			items = append(items, freeform{mean: seratoMean, name: atomPlayCount, value: []byte(strings.TrimSpace(string(value)))})
		default:
			field, ok := descriptiveField(name)
			if !ok {
				continue
			}
			update[field] = []string{string(value)}
			if name == TagBPM {
				items = append(items, freeform{mean: exactMean, name: atomExactBPM, value: append([]byte(nil), value...)})
			}
		}
	}
	if len(update) > 0 {
		if err := c.fields.Write(path, update); err != nil {
			return fmt.Errorf("write mp4 atoms: %w", err)
		}
	}
	if err := c.freeform.WriteFreeform(path, items); err != nil {
		return fmt.Errorf("write mp4 freeform atoms: %w", err)
	}
	return nil
}

func atomKey(name string) string {
	for _, sf := range seratoFields {
		if sf.name == name {
			return sf.atom
		}
	}
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimPrefix(name, "Serato")))
}

// wrapAtom prefixes a payload with the MIME header Serato expects in MP4
// files: "application/octet-stream\0<name>\0".
func wrapAtom(name string, payload []byte) []byte {
	out := make([]byte, 0, len(atomMIME)+len(name)+2+len(payload))
	out = append(out, atomMIME...)
	out = append(out, 0)
	out = append(out, name...)
	out = append(out, 0)
	return append(out, payload...)
}

// unwrapAtom strips the MIME header when present. Some writers put an extra
// NUL after the MIME type, which is tolerated. Data without the header is
// returned unchanged.
func unwrapAtom(data []byte) []byte {
	prefix := append([]byte(atomMIME), 0)
	if !bytes.HasPrefix(data, prefix) {
		return data
	}
	rest := data[len(prefix):]
	if len(rest) > 0 && rest[0] == 0 {
		rest = rest[1:]
	}
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return data
	}
	return rest[i+1:]
}
