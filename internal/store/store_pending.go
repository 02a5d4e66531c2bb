package store

import (
	"context"
	"fmt"
)

// RecordPendingCrateAddition notes that remoteID belongs in cratePath once
// downloaded. Recording the same pair twice is a no-op.
func (s *Store) RecordPendingCrateAddition(ctx context.Context, remoteID, cratePath string) error {
	if err := s.execWithoutResultRetry(ctx,
		"INSERT OR IGNORE INTO pending_crate_additions (tidal_track_id, crate_path, created_at) VALUES (?, ?, ?)",
		remoteID, cratePath, nowString(),
	); err != nil {
		return fmt.Errorf("record pending addition %s -> %s: %w", remoteID, cratePath, err)
	}
	return nil
}

// PendingCrateAdditions lists the crates waiting for remoteID, oldest first.
func (s *Store) PendingCrateAdditions(ctx context.Context, remoteID string) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT crate_path FROM pending_crate_additions WHERE tidal_track_id = ? ORDER BY id", remoteID)
	if err != nil {
		return nil, fmt.Errorf("query pending additions: %w", err)
	}
	defer rows.Close()

	var crates []string
	for rows.Next() {
		var cratePath string
		if err := rows.Scan(&cratePath); err != nil {
			return nil, fmt.Errorf("scan pending addition: %w", err)
		}
		crates = append(crates, cratePath)
	}
	return crates, rows.Err()
}

// ListPendingAdditions returns every pending addition, oldest first.
func (s *Store) ListPendingAdditions(ctx context.Context) ([]PendingAddition, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tidal_track_id, crate_path, created_at FROM pending_crate_additions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query pending additions: %w", err)
	}
	defer rows.Close()

	var out []PendingAddition
	for rows.Next() {
		var (
			p       PendingAddition
			created *string
		)
		if err := rows.Scan(&p.ID, &p.RemoteID, &p.CratePath, &created); err != nil {
			return nil, fmt.Errorf("scan pending addition: %w", err)
		}
		if created != nil {
			if ts, err := parseTimeString(*created); err == nil {
				p.CreatedAt = ts
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClearPendingCrateAddition removes one applied (remoteID, cratePath) pair.
func (s *Store) ClearPendingCrateAddition(ctx context.Context, remoteID, cratePath string) error {
	if err := s.execWithoutResultRetry(ctx,
		"DELETE FROM pending_crate_additions WHERE tidal_track_id = ? AND crate_path = ?", remoteID, cratePath,
	); err != nil {
		return fmt.Errorf("clear pending addition %s -> %s: %w", remoteID, cratePath, err)
	}
	return nil
}

// ClearPendingCrateAdditions removes every pending addition for remoteID.
func (s *Store) ClearPendingCrateAdditions(ctx context.Context, remoteID string) error {
	if err := s.execWithoutResultRetry(ctx,
		"DELETE FROM pending_crate_additions WHERE tidal_track_id = ?", remoteID,
	); err != nil {
		return fmt.Errorf("clear pending additions for %s: %w", remoteID, err)
	}
	return nil
}
