package store

import (
	"context"
	"fmt"
)

// runMigrations executes all database migrations for the store's dialect.
func (s *Store) runMigrations(ctx context.Context) error {
	migrations := sqliteMigrations
	if s.dialect == Postgres {
		migrations = postgresMigrations
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var sqliteMigrations = []string{
	// One row per persisted repeat. data holds the self-describing record
	// envelope; frame_count is denormalized for length scans.
	`CREATE TABLE IF NOT EXISTS action_repeats (
		id TEXT PRIMARY KEY,
		action_name TEXT NOT NULL,
		repeat_index INTEGER NOT NULL CHECK(repeat_index >= 0),
		schema_version INTEGER NOT NULL,
		frame_count INTEGER NOT NULL CHECK(frame_count > 0),
		data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(action_name, repeat_index)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_action_repeats_action_name ON action_repeats(action_name)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS action_repeats (
		id UUID PRIMARY KEY,
		action_name TEXT NOT NULL,
		repeat_index INTEGER NOT NULL CHECK(repeat_index >= 0),
		schema_version INTEGER NOT NULL,
		frame_count INTEGER NOT NULL CHECK(frame_count > 0),
		data TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(action_name, repeat_index)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_action_repeats_action_name ON action_repeats(action_name)`,
}
