package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cratesync/internal/services"
)

// BulkRegisterDiscovered inserts an inactive mirror for every crate path not
// yet known and returns how many were added.
func (s *Store) BulkRegisterDiscovered(ctx context.Context, cratePaths []string) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		added = 0
		for _, p := range cratePaths {
			if strings.TrimSpace(p) == "" {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO mirror_config (crate_path, crate_name, sync_direction, is_active)
                 VALUES (?, ?, ?, 0)`,
				p, crateName(p), DirectionBidirectional,
			)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				added += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("register discovered crates: %w", err)
	}
	return added, nil
}

// UpsertMirror inserts or updates the mirror keyed by cratePath.
func (s *Store) UpsertMirror(ctx context.Context, cratePath string, update MirrorUpdate) error {
	if strings.TrimSpace(cratePath) == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert mirror", "crate path is required", nil)
	}
	name := crateName(cratePath)
	if update.CrateName != nil && strings.TrimSpace(*update.CrateName) != "" {
		name = strings.TrimSpace(*update.CrateName)
	}
	direction := DirectionBidirectional
	if update.Direction != nil && *update.Direction != "" {
		direction = *update.Direction
	}
	var playlistID any
	if update.PlaylistID != nil {
		playlistID = nullableString(*update.PlaylistID)
	}
	active := false
	if update.Active != nil {
		active = *update.Active
	}

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO mirror_config (crate_path, crate_name, tidal_playlist_id, sync_direction, is_active)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(crate_path) DO UPDATE SET
             crate_name = CASE WHEN ? THEN excluded.crate_name ELSE mirror_config.crate_name END,
             tidal_playlist_id = CASE WHEN ? THEN excluded.tidal_playlist_id ELSE mirror_config.tidal_playlist_id END,
             sync_direction = CASE WHEN ? THEN excluded.sync_direction ELSE mirror_config.sync_direction END,
             is_active = CASE WHEN ? THEN excluded.is_active ELSE mirror_config.is_active END`,
		cratePath, name, playlistID, direction, boolToInt(active),
		boolToInt(update.CrateName != nil),
		boolToInt(update.PlaylistID != nil),
		boolToInt(update.Direction != nil),
		boolToInt(update.Active != nil),
	)
	if err != nil {
		return fmt.Errorf("upsert mirror %s: %w", cratePath, err)
	}
	return nil
}

// SetMirrorActive toggles the active flag, creating the mirror if needed.
func (s *Store) SetMirrorActive(ctx context.Context, cratePath string, active bool) error {
	return s.UpsertMirror(ctx, cratePath, MirrorUpdate{Active: &active})
}

// SetMirrorPlaylist records the remote playlist id of a mirror.
func (s *Store) SetMirrorPlaylist(ctx context.Context, cratePath, playlistID string) error {
	return s.UpsertMirror(ctx, cratePath, MirrorUpdate{PlaylistID: &playlistID})
}

// ClearMirrorPlaylist forgets a stale playlist id so the next pass recreates it.
func (s *Store) ClearMirrorPlaylist(ctx context.Context, cratePath string) error {
	return s.SetMirrorPlaylist(ctx, cratePath, "")
}

// RemoveMirror deletes the mirror and any crate additions still pending for
// its crate. It reports whether the mirror existed.
func (s *Store) RemoveMirror(ctx context.Context, cratePath string) (bool, error) {
	removed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM mirror_config WHERE crate_path = ?", cratePath)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		_, err = tx.ExecContext(ctx, "DELETE FROM pending_crate_additions WHERE crate_path = ?", cratePath)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove mirror %s: %w", cratePath, err)
	}
	return removed, nil
}

// GetMirror returns the mirror for a crate path, or nil when absent.
func (s *Store) GetMirror(ctx context.Context, cratePath string) (*Mirror, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+mirrorColumns+" FROM mirror_config WHERE crate_path = ?", cratePath)
	mirror, err := scanMirror(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mirror %s: %w", cratePath, err)
	}
	return mirror, nil
}

// ListMirrors returns mirrors in primary-key order. The CLI addresses mirrors
// by their position in this listing, so the order must never change between
// calls.
func (s *Store) ListMirrors(ctx context.Context, onlyActive bool) ([]*Mirror, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + mirrorColumns + " FROM mirror_config"
	if onlyActive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	var mirrors []*Mirror
	for rows.Next() {
		mirror, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		mirrors = append(mirrors, mirror)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mirrors: %w", err)
	}
	return mirrors, nil
}

// MirrorAt resolves a 1-based position in ListMirrors(onlyActive).
func (s *Store) MirrorAt(ctx context.Context, index int, onlyActive bool) (*Mirror, error) {
	mirrors, err := s.ListMirrors(ctx, onlyActive)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(mirrors) {
		return nil, services.Wrap(services.ErrNotFound, "store", "mirror index", fmt.Sprintf("no mirror at position %d (have %d)", index, len(mirrors)), nil)
	}
	return mirrors[index-1], nil
}
