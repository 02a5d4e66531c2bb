package csvimport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratesync/internal/services"
	"cratesync/internal/services/tidal"
)

func TestParseHeaderVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Row
	}{
		{
			name:  "plain",
			input: "title,artist\nOne,Artist A\n",
			want:  []Row{{Line: 2, Title: "One", Artist: "Artist A"}},
		},
		{
			name:  "bom and case",
			input: "\ufeffTrack_Name,Artist_Name\nTwo,Artist B\n",
			want:  []Row{{Line: 2, Title: "Two", Artist: "Artist B"}},
		},
		{
			name:  "extra columns and blanks",
			input: "album,Track,ARTIST\nX,Three,Artist C\nY,,Artist D\nZ,Five\n",
			want:  []Row{{Line: 2, Title: "Three", Artist: "Artist C"}},
		},
		{
			name:  "quoted",
			input: "title,artist\n\"Hello, World\", Artist E \n",
			want:  []Row{{Line: 2, Title: "Hello, World", Artist: "Artist E"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(rows) != len(tt.want) {
				t.Fatalf("expected %d rows, got %+v", len(tt.want), rows)
			}
			for i := range rows {
				if rows[i] != tt.want[i] {
					t.Fatalf("row %d: want %+v, got %+v", i, tt.want[i], rows[i])
				}
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for name, input := range map[string]string{
		"empty":          "",
		"missing artist": "title,album\nOne,X\n",
		"no valid rows":  "title,artist\n,Artist A\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.csv")
	if err := os.WriteFile(path, []byte("artist,title\nArtist A,One\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := ParseFile(path)
	if err != nil || len(rows) != 1 || rows[0].Title != "One" {
		t.Fatalf("ParseFile: %+v %v", rows, err)
	}
}

type stubCatalog struct {
	authErr  error
	tracks   map[string]string
	created  []string
	added    map[string][]string
	fatalAt  string
	searched int
}

func (s *stubCatalog) Authenticate(context.Context) error { return s.authErr }

func (s *stubCatalog) SearchTrack(_ context.Context, title, artist string) (*tidal.Track, error) {
	s.searched++
	if title == s.fatalAt {
		return nil, services.Wrap(services.ErrAuthentication, "tidal", "search", "expired", nil)
	}
	if id, ok := s.tracks[artist+"|"+title]; ok {
		return &tidal.Track{ID: id, Title: title, Artist: artist}, nil
	}
	return nil, services.Wrap(services.ErrSearchMiss, "tidal", "search", title, nil)
}

func (s *stubCatalog) CreatePlaylist(_ context.Context, name, _, _ string) (*tidal.Playlist, error) {
	s.created = append(s.created, name)
	return &tidal.Playlist{ID: "pl-" + name, Title: name}, nil
}

func (s *stubCatalog) AddTracksToPlaylist(_ context.Context, id string, ids []string) (int, error) {
	if s.added == nil {
		s.added = map[string][]string{}
	}
	s.added[id] = append(s.added[id], ids...)
	return len(ids), nil
}

func TestImportCreatesPlaylistOfMatches(t *testing.T) {
	catalog := &stubCatalog{tracks: map[string]string{"A|One": "1", "C|Three": "3", "A|One (again)": "1"}}
	rows := []Row{
		{Line: 2, Title: "One", Artist: "A"},
		{Line: 3, Title: "Two", Artist: "B"},
		{Line: 4, Title: "Three", Artist: "C"},
		{Line: 5, Title: "One (again)", Artist: "A"},
	}

	result, err := NewImporter(catalog, nil).Import(context.Background(), rows, Options{Name: "Party"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.PlaylistID != "pl-Party" || result.Added != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Found) != 3 || len(result.Missed) != 1 || result.Missed[0].Line != 3 {
		t.Fatalf("unexpected matches: %+v", result)
	}
	if got := strings.Join(catalog.added["pl-Party"], ","); got != "1,3" {
		t.Fatalf("unexpected ids sent: %s", got)
	}
}

func TestImportWithoutMatchesCreatesNothing(t *testing.T) {
	catalog := &stubCatalog{}
	result, err := NewImporter(catalog, nil).Import(context.Background(), []Row{{Title: "X", Artist: "Y"}}, Options{Name: "Empty"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.PlaylistID != "" || len(catalog.created) != 0 {
		t.Fatalf("no playlist expected: %+v", result)
	}
}

func TestImportStopsOnFatalError(t *testing.T) {
	catalog := &stubCatalog{fatalAt: "One"}
	rows := []Row{{Title: "One", Artist: "A"}, {Title: "Two", Artist: "B"}}
	_, err := NewImporter(catalog, nil).Import(context.Background(), rows, Options{Name: "P"})
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if catalog.searched != 1 {
		t.Fatalf("expected import to stop, searched %d", catalog.searched)
	}
}

func TestImportRequiresName(t *testing.T) {
	_, err := NewImporter(&stubCatalog{}, nil).Import(context.Background(), nil, Options{Name: " "})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
