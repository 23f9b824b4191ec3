// Package sqlitestore is an optional, concrete globalmemory.Store adapter
// backed by SQLite. It exists to exercise the globalmemory.Store contract
// end to end; it does not attempt to own the real composite cross-project
// database's schema or multi-writer concurrency story.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsado88/squall/internal/globalmemory"

	_ "modernc.org/sqlite" // driver registration
)

const defaultBusyTimeoutMS = 5000

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rollups (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		model_key    TEXT    NOT NULL,
		project_path TEXT    NOT NULL,
		outcome      TEXT    NOT NULL,
		latency_sec  REAL    NOT NULL DEFAULT 0,
		recorded_at  TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rollups_model ON rollups(model_key)`,
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed Store at path, with
// WAL mode and a single serialised connection, matching the teacher's
// history-store opening discipline.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("globalmemory/sqlitestore: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("globalmemory/sqlitestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("globalmemory/sqlitestore: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("globalmemory/sqlitestore: set busy_timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("globalmemory/sqlitestore: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("globalmemory/sqlitestore: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("globalmemory/sqlitestore: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	_, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion)
	if err != nil {
		return fmt.Errorf("globalmemory/sqlitestore: record schema version: %w", err)
	}
	return nil
}

// Record satisfies globalmemory.Store.
func (s *Store) Record(rec globalmemory.Record) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO rollups (model_key, project_path, outcome, latency_sec, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ModelKey, rec.ProjectPath, rec.Outcome, rec.LatencySec, rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))
	if err != nil {
		return fmt.Errorf("globalmemory/sqlitestore: record: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
