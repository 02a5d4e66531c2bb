package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

const trackColumns = "id, local_path, tidal_track_id, isrc, bitrate, status, downloaded_path, display_name, last_sync"

const mirrorColumns = "id, crate_path, crate_name, tidal_playlist_id, sync_direction, is_active"

type rowScanner interface{ Scan(dest ...any) error }

func scanTrack(scanner rowScanner) (*Track, error) {
	var (
		id             int64
		localPath      string
		remoteID       sql.NullString
		isrc           sql.NullString
		bitrate        sql.NullInt64
		statusRaw      sql.NullString
		downloadedPath sql.NullString
		displayName    sql.NullString
		lastSyncRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&localPath,
		&remoteID,
		&isrc,
		&bitrate,
		&statusRaw,
		&downloadedPath,
		&displayName,
		&lastSyncRaw,
	); err != nil {
		return nil, err
	}

	track := &Track{
		ID:             id,
		LocalPath:      localPath,
		RemoteID:       remoteID.String,
		ISRC:           isrc.String,
		Bitrate:        int(bitrate.Int64),
		Status:         Status(statusRaw.String),
		DownloadedPath: downloadedPath.String,
		DisplayName:    displayName.String,
	}
	if track.Status == "" {
		track.Status = StatusSynced
	}
	if ts, err := parseTimeString(lastSyncRaw.String); err == nil {
		track.LastSync = ts
	}
	return track, nil
}

func scanMirror(scanner rowScanner) (*Mirror, error) {
	var (
		id         int64
		cratePath  string
		nameRaw    sql.NullString
		playlistID sql.NullString
		direction  sql.NullString
		active     sql.NullInt64
	)
	if err := scanner.Scan(&id, &cratePath, &nameRaw, &playlistID, &direction, &active); err != nil {
		return nil, err
	}
	mirror := &Mirror{
		ID:         id,
		CratePath:  cratePath,
		CrateName:  nameRaw.String,
		PlaylistID: playlistID.String,
		Direction:  direction.String,
		Active:     active.Valid && active.Int64 != 0,
	}
	if mirror.CrateName == "" {
		mirror.CrateName = crateName(cratePath)
	}
	if mirror.Direction == "" {
		mirror.Direction = DirectionBidirectional
	}
	return mirror, nil
}

func crateName(cratePath string) string {
	return strings.TrimSuffix(filepath.Base(cratePath), filepath.Ext(cratePath))
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value <= 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
