package markers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"cratesync/internal/fileutil"
)

// Freeform namespaces used in MP4 "----" items.
const (
	seratoMean = "com.serato.dj"
	// exactMean holds values whose native MP4 atom loses precision (tmpo is
	// an integer).
	exactMean = "org.cratesync"
)

// dataTypeUTF8 is the well-known type of a "data" atom holding UTF-8 text.
const dataTypeUTF8 = 1

var errMP4 = errors.New("malformed mp4")

// freeform is one "----" item: mean (namespace), name and the first data
// payload.
type freeform struct {
	mean  string
	name  string
	value []byte
}

// freeformStore reads and writes MP4 freeform items.
type freeformStore interface {
	ReadFreeform(path string) ([]freeform, error)
	// WriteFreeform replaces items with the same mean and name and appends
	// the rest. A nil value removes the item.
	WriteFreeform(path string, items []freeform) error
}

type mp4File struct{}

func (mp4File) ReadFreeform(path string) ([]freeform, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return readFreeform(buf)
}

func (mp4File) WriteFreeform(path string, items []freeform) error {
	if len(items) == 0 {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := writeFreeform(buf, items)
	if err != nil {
		return err
	}
	return fileutil.ReplaceFile(path, out)
}

type box struct {
	typ   string
	start int
	end   int
	hdr   int
}

func (b box) body() int { return b.start + b.hdr }

func readBoxes(buf []byte, start, end int) ([]box, error) {
	var out []box
	for off := start; off < end; {
		if end-off < 8 {
			return nil, fmt.Errorf("%w: truncated box header at %d", errMP4, off)
		}
		size := uint64(binary.BigEndian.Uint32(buf[off:]))
		hdr := 8
		switch size {
		case 0:
			size = uint64(end - off)
		case 1:
			if end-off < 16 {
				return nil, fmt.Errorf("%w: truncated box header at %d", errMP4, off)
			}
			size = binary.BigEndian.Uint64(buf[off+8:])
			hdr = 16
		}
		if size < uint64(hdr) || size > uint64(end-off) {
			return nil, fmt.Errorf("%w: box %q at %d overruns its parent", errMP4, buf[off+4:off+8], off)
		}
		out = append(out, box{typ: string(buf[off+4 : off+8]), start: off, end: off + int(size), hdr: hdr})
		off += int(size)
	}
	return out, nil
}

func findBox(boxes []box, typ string) (box, bool) {
	for _, b := range boxes {
		if b.typ == typ {
			return b, true
		}
	}
	return box{}, false
}

// ilstPath walks moov/udta/meta/ilst. Missing levels are reported through
// the returned depth: 0 no moov, 1 no udta, 2 no meta, 3 no ilst, 4 found.
type ilstPath struct {
	moov, udta, meta, ilst box
	depth                  int
}

func locateIlst(buf []byte) (ilstPath, error) {
	var p ilstPath
	top, err := readBoxes(buf, 0, len(buf))
	if err != nil {
		return p, err
	}
	var ok bool
	if p.moov, ok = findBox(top, "moov"); !ok {
		return p, fmt.Errorf("%w: no moov box", errMP4)
	}
	p.depth = 1
	children, err := readBoxes(buf, p.moov.body(), p.moov.end)
	if err != nil {
		return p, err
	}
	if p.udta, ok = findBox(children, "udta"); !ok {
		return p, nil
	}
	p.depth = 2
	if children, err = readBoxes(buf, p.udta.body(), p.udta.end); err != nil {
		return p, err
	}
	if p.meta, ok = findBox(children, "meta"); !ok {
		return p, nil
	}
	p.depth = 3
	if p.meta.end-p.meta.body() < 4 {
		return p, fmt.Errorf("%w: short meta box", errMP4)
	}
	if children, err = readBoxes(buf, p.meta.body()+4, p.meta.end); err != nil {
		return p, err
	}
	if p.ilst, ok = findBox(children, "ilst"); ok {
		p.depth = 4
	}
	return p, nil
}

func readFreeform(buf []byte) ([]freeform, error) {
	p, err := locateIlst(buf)
	if err != nil {
		return nil, err
	}
	if p.depth < 4 {
		return nil, nil
	}
	items, err := readBoxes(buf, p.ilst.body(), p.ilst.end)
	if err != nil {
		return nil, err
	}
	var out []freeform
	for _, item := range items {
		if item.typ != "----" {
			continue
		}
		ff, ok, err := parseFreeform(buf, item)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, ff)
		}
	}
	return out, nil
}

func parseFreeform(buf []byte, item box) (freeform, bool, error) {
	children, err := readBoxes(buf, item.body(), item.end)
	if err != nil {
		return freeform{}, false, err
	}
	var ff freeform
	var haveData bool
	for _, c := range children {
		payload := buf[c.body():c.end]
		switch c.typ {
		case "mean", "name":
			if len(payload) < 4 {
				return freeform{}, false, fmt.Errorf("%w: short %s atom", errMP4, c.typ)
			}
			if c.typ == "mean" {
				ff.mean = string(payload[4:])
			} else {
				ff.name = string(payload[4:])
			}
		case "data":
			if haveData {
				continue
			}
			if len(payload) < 8 {
				return freeform{}, false, fmt.Errorf("%w: short data atom", errMP4)
			}
			ff.value = append([]byte(nil), payload[8:]...)
			haveData = true
		}
	}
	return ff, haveData && ff.mean != "" && ff.name != "", nil
}

func makeBox(typ string, payload ...[]byte) []byte {
	n := 8
	for _, p := range payload {
		n += len(p)
	}
	hdr := 8
	if uint64(n) > math.MaxUint32 {
		hdr = 16
		n += 8
	}
	out := make([]byte, hdr, n)
	if hdr == 16 {
		binary.BigEndian.PutUint32(out, 1)
		copy(out[4:], typ)
		binary.BigEndian.PutUint64(out[8:], uint64(n))
	} else {
		binary.BigEndian.PutUint32(out, uint32(n))
		copy(out[4:], typ)
	}
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

func fullBoxPayload(s string) []byte {
	return append([]byte{0, 0, 0, 0}, s...)
}

func encodeFreeform(ff freeform) []byte {
	data := make([]byte, 8, 8+len(ff.value))
	binary.BigEndian.PutUint32(data, dataTypeUTF8)
	data = append(data, ff.value...)
	return makeBox("----",
		makeBox("mean", fullBoxPayload(ff.mean)),
		makeBox("name", fullBoxPayload(ff.name)),
		makeBox("data", data),
	)
}

// metaHandler is the hdlr box iTunes-style metadata requires.
func metaHandler() []byte {
	payload := make([]byte, 0, 25)
	payload = append(payload, 0, 0, 0, 0) // version, flags
	payload = append(payload, 0, 0, 0, 0) // pre_defined
	payload = append(payload, "mdirappl"...)
	payload = append(payload, make([]byte, 9)...)
	return makeBox("hdlr", payload)
}

// replaceChild rebuilds parent with the span of old replaced by repl, or
// with repl appended when old is nil. prefix bytes between the header and
// the first child (meta's version and flags) are kept.
func replaceChild(buf []byte, parent box, childStart int, old *box, repl []byte) []byte {
	prefix := buf[parent.body():childStart]
	if old == nil {
		return makeBox(parent.typ, prefix, buf[childStart:parent.end], repl)
	}
	return makeBox(parent.typ, prefix, buf[childStart:old.start], repl, buf[old.end:parent.end])
}

func writeFreeform(buf []byte, updates []freeform) ([]byte, error) {
	p, err := locateIlst(buf)
	if err != nil {
		return nil, err
	}

	var ilst []byte
	if p.depth == 4 {
		items, err := readBoxes(buf, p.ilst.body(), p.ilst.end)
		if err != nil {
			return nil, err
		}
		var kept [][]byte
		for _, item := range items {
			if item.typ == "----" {
				ff, ok, err := parseFreeform(buf, item)
				if err != nil {
					return nil, err
				}
				if ok && replaced(updates, ff) {
					continue
				}
			}
			kept = append(kept, buf[item.start:item.end])
		}
		kept = append(kept, encodeUpdates(updates)...)
		ilst = makeBox("ilst", kept...)
	} else {
		ilst = makeBox("ilst", encodeUpdates(updates)...)
	}

	var moov []byte
	switch p.depth {
	case 4:
		meta := replaceChild(buf, p.meta, p.meta.body()+4, &p.ilst, ilst)
		udta := replaceChild(buf, p.udta, p.udta.body(), &p.meta, meta)
		moov = replaceChild(buf, p.moov, p.moov.body(), &p.udta, udta)
	case 3:
		meta := replaceChild(buf, p.meta, p.meta.body()+4, nil, ilst)
		udta := replaceChild(buf, p.udta, p.udta.body(), &p.meta, meta)
		moov = replaceChild(buf, p.moov, p.moov.body(), &p.udta, udta)
	case 2:
		meta := makeBox("meta", []byte{0, 0, 0, 0}, metaHandler(), ilst)
		udta := replaceChild(buf, p.udta, p.udta.body(), nil, meta)
		moov = replaceChild(buf, p.moov, p.moov.body(), &p.udta, udta)
	default:
		meta := makeBox("meta", []byte{0, 0, 0, 0}, metaHandler(), ilst)
		moov = replaceChild(buf, p.moov, p.moov.body(), nil, makeBox("udta", meta))
	}

	delta := int64(len(moov)) - int64(p.moov.end-p.moov.start)
	out := make([]byte, 0, len(buf)+int(delta))
	out = append(out, buf[:p.moov.start]...)
	out = append(out, moov...)
	out = append(out, buf[p.moov.end:]...)
	if delta != 0 {
		if err := shiftOffsets(out, p.moov.start, int64(p.moov.start), delta); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func replaced(updates []freeform, ff freeform) bool {
	for _, u := range updates {
		if u.mean == ff.mean && u.name == ff.name {
			return true
		}
	}
	return false
}

func encodeUpdates(updates []freeform) [][]byte {
	out := make([][]byte, 0, len(updates))
	for _, u := range updates {
		if u.value == nil {
			continue
		}
		out = append(out, encodeFreeform(u))
	}
	return out
}

// shiftOffsets moves absolute file offsets that point past the rewritten
// moov (which starts at moovStart) by delta: chunk offsets in stco/co64 and
// fragment base offsets in tfhd.
func shiftOffsets(buf []byte, moovStart int, pivot, delta int64) error {
	top, err := readBoxes(buf, 0, len(buf))
	if err != nil {
		return err
	}
	for _, b := range top {
		switch {
		case b.typ == "moov" && b.start == moovStart:
			if err := walkTables(buf, b, pivot, delta); err != nil {
				return err
			}
		case b.typ == "moof":
			if err := walkTables(buf, b, pivot, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkTables(buf []byte, parent box, pivot, delta int64) error {
	children, err := readBoxes(buf, parent.body(), parent.end)
	if err != nil {
		return err
	}
	for _, c := range children {
		switch c.typ {
		case "trak", "mdia", "minf", "stbl", "traf":
			if err := walkTables(buf, c, pivot, delta); err != nil {
				return err
			}
		case "stco":
			if err := shiftTable(buf, c, 4, pivot, delta); err != nil {
				return err
			}
		case "co64":
			if err := shiftTable(buf, c, 8, pivot, delta); err != nil {
				return err
			}
		case "tfhd":
			body := buf[c.body():c.end]
			if len(body) >= 16 && body[3]&0x01 != 0 {
				v := int64(binary.BigEndian.Uint64(body[8:]))
				if v > pivot {
					binary.BigEndian.PutUint64(body[8:], uint64(v+delta))
				}
			}
		}
	}
	return nil
}

func shiftTable(buf []byte, b box, width int, pivot, delta int64) error {
	body := buf[b.body():b.end]
	if len(body) < 8 {
		return fmt.Errorf("%w: short %s", errMP4, b.typ)
	}
	count := int(binary.BigEndian.Uint32(body[4:]))
	entries := body[8:]
	if count < 0 || len(entries) < count*width {
		return fmt.Errorf("%w: %s entry count overruns box", errMP4, b.typ)
	}
	for i := 0; i < count; i++ {
		e := entries[i*width:]
		if width == 4 {
			v := int64(binary.BigEndian.Uint32(e))
			if v > pivot {
				binary.BigEndian.PutUint32(e, uint32(v+delta))
			}
			continue
		}
		v := int64(binary.BigEndian.Uint64(e))
		if v > pivot {
			binary.BigEndian.PutUint64(e, uint64(v+delta))
		}
	}
	return nil
}
