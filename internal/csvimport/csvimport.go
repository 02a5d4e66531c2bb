// Package csvimport builds a remote playlist from a CSV list of tracks.
//
// The file needs a title column (title, track or track_name) and an artist
// column (artist or artist_name). Header names are matched case-insensitively
// and a UTF-8 byte order mark is tolerated. Rows missing either value are
// skipped.
package csvimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cratesync/internal/logging"
	"cratesync/internal/services"
	"cratesync/internal/services/tidal"
)

var (
	titleHeaders  = []string{"title", "track_name", "track"}
	artistHeaders = []string{"artist", "artist_name"}
)

// Row is one usable line of the CSV file.
type Row struct {
	Line   int
	Title  string
	Artist string
}

// Parse reads rows from r.
func Parse(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "csvimport", "parse", "file is empty or has no header", nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrMalformed, "csvimport", "parse", "header", err)
	}
	titleCol, artistCol := findColumn(header, titleHeaders), findColumn(header, artistHeaders)
	if titleCol < 0 || artistCol < 0 {
		return nil, services.Wrap(services.ErrValidation, "csvimport", "parse",
			"need title and artist columns; found "+strings.Join(header, ", "), nil)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrMalformed, "csvimport", "parse", "", err)
		}
		line, _ := reader.FieldPos(0)
		title, artist := field(record, titleCol), field(record, artistCol)
		if title == "" || artist == "" {
			continue
		}
		rows = append(rows, Row{Line: line, Title: title, Artist: artist})
	}
	if len(rows) == 0 {
		return nil, services.Wrap(services.ErrValidation, "csvimport", "parse", "no rows with both title and artist", nil)
	}
	return rows, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "csvimport", "open", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func field(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

// Catalog is the part of the remote service an import needs.
type Catalog interface {
	Authenticate(ctx context.Context) error
	SearchTrack(ctx context.Context, title, artist string) (*tidal.Track, error)
	CreatePlaylist(ctx context.Context, name, description, folder string) (*tidal.Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) (int, error)
}

// Options names the playlist an import creates.
type Options struct {
	Name        string
	Description string
	Folder      string
}

// Match pairs a CSV row with the remote track found for it.
type Match struct {
	Row   Row
	Track tidal.Track
}

// Result reports an import. PlaylistID is empty when nothing matched.
type Result struct {
	PlaylistID string
	Found      []Match
	Missed     []Row
	Added      int
}

// Importer runs CSV imports against a catalog.
type Importer struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewImporter returns an Importer; a nil logger discards output.
func NewImporter(catalog Catalog, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{catalog: catalog, logger: logging.NewComponentLogger(logger, "csvimport")}
}

// Import searches every row and creates a playlist holding the matches.
func (im *Importer) Import(ctx context.Context, rows []Row, opts Options) (*Result, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "csvimport", "import", "playlist name is required", nil)
	}
	if err := im.catalog.Authenticate(ctx); err != nil {
		return nil, err
	}

	result := &Result{}
	seen := map[string]struct{}{}
	var ids []string
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, services.Wrap(services.ErrInterrupted, "csvimport", "search", "import cancelled", err)
		}
		track, err := im.catalog.SearchTrack(ctx, row.Title, row.Artist)
		if err != nil {
			if services.IsFatal(err) {
				return result, err
			}
			result.Missed = append(result.Missed, row)
			im.logger.Info("no remote match",
				logging.Int("line", row.Line),
				logging.String("artist", row.Artist),
				logging.String("title", row.Title),
			)
			continue
		}
		result.Found = append(result.Found, Match{Row: row, Track: *track})
		if _, dup := seen[track.ID]; !dup {
			seen[track.ID] = struct{}{}
			ids = append(ids, track.ID)
		}
	}
	if len(ids) == 0 {
		logging.WarnWithContext(im.logger, "no rows matched; playlist not created", "csv_no_matches",
			logging.Int("rows", len(rows)),
		)
		return result, nil
	}

	playlist, err := im.catalog.CreatePlaylist(ctx, name, opts.Description, opts.Folder)
	if err != nil {
		return result, fmt.Errorf("create playlist %q: %w", name, err)
	}
	result.PlaylistID = playlist.ID
	added, err := im.catalog.AddTracksToPlaylist(ctx, playlist.ID, ids)
	result.Added = added
	if err != nil {
		return result, fmt.Errorf("add tracks to %q: %w", name, err)
	}

	im.logger.Info("csv import finished",
		logging.String("playlist_id", playlist.ID),
		logging.Int("found", len(result.Found)),
		logging.Int("missed", len(result.Missed)),
		logging.Int("added", added),
	)
	return result, nil
}
