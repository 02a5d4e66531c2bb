package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RetryFailed moves every failed mapping back to pending_download.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE track_mapping SET status = ?, last_sync = ? WHERE status = ?",
		StatusPendingDownload, nowString(), StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed tracks: %w", err)
	}
	return res.RowsAffected()
}

// ClearAllTrackMappings wipes track mappings and pending additions. Mirrors are kept.
func (s *Store) ClearAllTrackMappings(ctx context.Context) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM track_mapping")
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM pending_crate_additions")
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear track mappings: %w", err)
	}
	return removed, nil
}

// Stats returns the number of mappings per status. Every status is present in
// the result, with zero for unused ones.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM track_mapping GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, st := range allStatuses {
		stats[st] = 0
	}
	for rows.Next() {
		var (
			status sql.NullString
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		key := Status(status.String)
		if key == "" {
			key = StatusSynced
		}
		stats[key] += count
	}
	return stats, rows.Err()
}
