package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cratesync/internal/services"
)

// UpsertTrack inserts a mapping or merges into the existing one. Remote id and
// ISRC are overwritten; bitrate and display name only replace stored values
// when a new value is supplied.
func (s *Store) UpsertTrack(ctx context.Context, in TrackUpsert) error {
	if strings.TrimSpace(in.LocalPath) == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert track", "local path is required", nil)
	}
	status := in.InitialStatus
	if status == "" {
		status = StatusSynced
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return services.Wrap(services.ErrValidation, "store", "upsert track", "", err)
	}
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO track_mapping (local_path, tidal_track_id, isrc, bitrate, display_name, status, last_sync)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(local_path) DO UPDATE SET
             tidal_track_id = excluded.tidal_track_id,
             isrc = excluded.isrc,
             bitrate = COALESCE(excluded.bitrate, track_mapping.bitrate),
             display_name = COALESCE(excluded.display_name, track_mapping.display_name),
             last_sync = excluded.last_sync`,
		in.LocalPath,
		nullableString(in.RemoteID),
		nullableString(in.ISRC),
		nullableInt(in.Bitrate),
		nullableString(in.DisplayName),
		status,
		nowString(),
	)
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", in.LocalPath, err)
	}
	return nil
}

// UpdateStatus sets the status of a mapping and, when downloadedPath is
// non-empty, its downloaded path. last_sync only moves when the status changes.
func (s *Store) UpdateStatus(ctx context.Context, localPath string, status Status, downloadedPath string) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return services.Wrap(services.ErrValidation, "store", "update status", "", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE track_mapping
         SET last_sync = CASE WHEN status IS NOT ? THEN ? ELSE last_sync END,
             status = ?,
             downloaded_path = COALESCE(?, downloaded_path)
         WHERE local_path = ?`,
		status, nowString(),
		status,
		nullableString(downloadedPath),
		localPath,
	)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", localPath, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update status", localPath, nil)
	}
	return nil
}

// TrackInfo returns the cached remote id and bitrate for a local path, or nil
// when the path has never been mapped.
func (s *Store) TrackInfo(ctx context.Context, localPath string) (*TrackInfo, error) {
	track, err := s.GetTrack(ctx, localPath)
	if err != nil || track == nil {
		return nil, err
	}
	return &TrackInfo{RemoteID: track.RemoteID, Bitrate: track.Bitrate}, nil
}

// GetTrack returns the full mapping row for a key, or nil when absent.
func (s *Store) GetTrack(ctx context.Context, localPath string) (*Track, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM track_mapping WHERE local_path = ?", localPath)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track %s: %w", localPath, err)
	}
	return track, nil
}

// ListTracks returns mappings in insertion order, optionally filtered by status.
func (s *Store) ListTracks(ctx context.Context, statuses ...Status) ([]*Track, error) {
	query := "SELECT " + trackColumns + " FROM track_mapping"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY id"
	return s.queryTracks(ctx, query, args...)
}

// TracksByStatus returns mappings with the given status in insertion order.
func (s *Store) TracksByStatus(ctx context.Context, status Status) ([]*Track, error) {
	return s.ListTracks(ctx, status)
}

// FindByRemoteID returns every mapping cached against a remote track id.
func (s *Store) FindByRemoteID(ctx context.Context, remoteID string) ([]*Track, error) {
	if remoteID == "" {
		return nil, nil
	}
	return s.queryTracks(ctx, "SELECT "+trackColumns+" FROM track_mapping WHERE tidal_track_id = ? ORDER BY id", remoteID)
}

// DeleteTrack removes one mapping and reports whether it existed.
func (s *Store) DeleteTrack(ctx context.Context, localPath string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM track_mapping WHERE local_path = ?", localPath)
	if err != nil {
		return false, fmt.Errorf("delete track %s: %w", localPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) queryTracks(ctx context.Context, query string, args ...any) ([]*Track, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return tracks, nil
}
