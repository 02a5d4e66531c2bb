package markers

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMovie returns ftyp, moov (one track whose stco points into mdat) and
// mdat, in that order, plus the audio payload mdat carries.
func buildMovie(t *testing.T, udta []byte) ([]byte, []byte) {
	t.Helper()
	payload := []byte("AUDIO-PAYLOAD")
	ftyp := makeBox("ftyp", []byte("M4A \x00\x00\x00\x00M4A isom"))

	stco := func(offset uint32) []byte {
		body := make([]byte, 12)
		binary.BigEndian.PutUint32(body[4:], 1)
		binary.BigEndian.PutUint32(body[8:], offset)
		return makeBox("stco", body)
	}
	moovFor := func(offset uint32) []byte {
		trak := makeBox("trak", makeBox("mdia", makeBox("minf", makeBox("stbl", stco(offset)))))
		if udta == nil {
			return makeBox("moov", trak)
		}
		return makeBox("moov", trak, udta)
	}
	moov := moovFor(0)
	offset := uint32(len(ftyp) + len(moov) + 8)
	moov = moovFor(offset)
	mdat := makeBox("mdat", payload)

	var buf []byte
	buf = append(buf, ftyp...)
	buf = append(buf, moov...)
	buf = append(buf, mdat...)
	return buf, payload
}

func chunkOffset(t *testing.T, buf []byte) int {
	t.Helper()
	var find func(start, end int) (int, bool)
	find = func(start, end int) (int, bool) {
		boxes, err := readBoxes(buf, start, end)
		if err != nil {
			t.Fatalf("read boxes: %v", err)
		}
		for _, b := range boxes {
			switch b.typ {
			case "moov", "trak", "mdia", "minf", "stbl":
				if off, ok := find(b.body(), b.end); ok {
					return off, true
				}
			case "stco":
				return int(binary.BigEndian.Uint32(buf[b.body()+8:])), true
			}
		}
		return 0, false
	}
	off, ok := find(0, len(buf))
	if !ok {
		t.Fatal("no stco box")
	}
	return off
}

func TestWriteFreeformCreatesMetadataAndShiftsChunkOffsets(t *testing.T) {
	movie, payload := buildMovie(t, nil)
	if got := chunkOffset(t, movie); !bytes.Equal(movie[got:got+len(payload)], payload) {
		t.Fatal("fixture stco does not point at the payload")
	}

	out, err := writeFreeform(movie, []freeform{{mean: seratoMean, name: "markersv2", value: []byte("QUJD")}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(out) <= len(movie) {
		t.Fatalf("expected the movie to grow, %d -> %d", len(movie), len(out))
	}
	off := chunkOffset(t, out)
	if !bytes.Equal(out[off:off+len(payload)], payload) {
		t.Fatalf("chunk offset %d no longer points at the payload", off)
	}
	if !bytes.Contains(out, []byte("hdlr\x00\x00\x00\x00\x00\x00\x00\x00mdirappl")) {
		t.Fatal("expected an mdir handler in the new meta box")
	}

	items, err := readFreeform(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 1 || items[0].mean != seratoMean || items[0].name != "markersv2" || string(items[0].value) != "QUJD" {
		t.Fatalf("unexpected items %#v", items)
	}
}

func TestWriteFreeformReplacesMatchingItems(t *testing.T) {
	other := encodeFreeform(freeform{mean: "com.apple.iTunes", name: "LABEL", value: []byte("Sire")})
	old := encodeFreeform(freeform{mean: seratoMean, name: "beatgrid", value: []byte("old")})
	meta := makeBox("meta", []byte{0, 0, 0, 0}, metaHandler(), makeBox("ilst", other, old))
	movie, payload := buildMovie(t, makeBox("udta", meta))

	out, err := writeFreeform(movie, []freeform{
		{mean: seratoMean, name: "beatgrid", value: []byte("new")},
		{mean: exactMean, name: "BPM", value: []byte("124.50")},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	items, err := readFreeform(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := map[string]string{}
	for _, ff := range items {
		got[ff.mean+":"+ff.name] = string(ff.value)
	}
	want := map[string]string{
		"com.apple.iTunes:LABEL": "Sire",
		"com.serato.dj:beatgrid": "new",
		"org.cratesync:BPM":      "124.50",
	}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("item %s = %q, want %q", k, got[k], v)
		}
	}
	off := chunkOffset(t, out)
	if !bytes.Equal(out[off:off+len(payload)], payload) {
		t.Fatal("chunk offset not shifted with the rewritten moov")
	}

	// A nil value removes the item.
	out, err = writeFreeform(out, []freeform{{mean: seratoMean, name: "beatgrid"}})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if items, _ := readFreeform(out); len(items) != 2 {
		t.Fatalf("expected 2 items after removal, got %#v", items)
	}
}

func TestWriteFreeformLeavesEarlierMediaAlone(t *testing.T) {
	mdat := makeBox("mdat", []byte("EARLY"))
	ftyp := makeBox("ftyp", []byte("M4A \x00\x00\x00\x00"))
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[4:], 1)
	binary.BigEndian.PutUint32(body[8:], uint32(len(ftyp)+8))
	moov := makeBox("moov", makeBox("trak", makeBox("mdia", makeBox("minf", makeBox("stbl", makeBox("stco", body))))))

	movie := append(append(append([]byte(nil), ftyp...), mdat...), moov...)
	out, err := writeFreeform(movie, []freeform{{mean: seratoMean, name: "overview", value: []byte("x")}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if off := chunkOffset(t, out); string(out[off:off+5]) != "EARLY" {
		t.Fatalf("offset before moov moved to %d", off)
	}
}

func TestReadFreeformRejectsBrokenBoxes(t *testing.T) {
	cases := map[string][]byte{
		"no moov": makeBox("ftyp", []byte("M4A ")),
		"overrun": {0, 0, 0, 0x40, 'm', 'o', 'o', 'v', 0, 0},
		"short":   {0, 0, 0},
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := readFreeform(buf); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
