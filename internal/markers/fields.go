package markers

import (
	"go.senan.xyz/taglib"
)

// fieldStore reads and writes a file's property map. Keys are upper case.
type fieldStore interface {
	Read(path string) (map[string][]string, error)
	Write(path string, fields map[string][]string) error
}

// backend bundles the stores containers read and write through.
type backend struct {
	fields   fieldStore
	freeform freeformStore
}

func defaultBackend() backend {
	return backend{fields: taglibStore{}, freeform: mp4File{}}
}

// taglibStore is the fieldStore backed by TagLib. Write merges: keys present
// in fields replace stored values, every other key is left alone.
type taglibStore struct{}

func (taglibStore) Read(path string) (map[string][]string, error) {
	return taglib.ReadTags(path)
}

func (taglibStore) Write(path string, fields map[string][]string) error {
	return taglib.WriteTags(path, fields, 0)
}

func firstValue(fields map[string][]string, keys ...string) (string, bool) {
	for _, key := range keys {
		for _, v := range fields[key] {
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}
