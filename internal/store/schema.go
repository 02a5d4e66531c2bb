package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// columnAddition is an additive migration that only runs when the column is
// missing, so databases that already grew the column are left alone.
type columnAddition struct {
	table  string
	column string
	decl   string
}

var columnAdditions = []columnAddition{
	{table: "track_mapping", column: "bitrate", decl: "INTEGER"},
	{table: "track_mapping", column: "downloaded_path", decl: "TEXT"},
	{table: "track_mapping", column: "display_name", decl: "TEXT"},
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, add := range columnAdditions {
		if err := s.ensureColumn(ctx, add); err != nil {
			return err
		}
	}
	return s.applyMigrations(ctx)
}

func (s *Store) ensureColumn(ctx context.Context, add columnAddition) error {
	exists, err := s.columnExists(ctx, add.table, add.column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", add.table, add.column, add.decl)
	if err := s.execWithoutResultRetry(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", add.table, add.column, err)
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
