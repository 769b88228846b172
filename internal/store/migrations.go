package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// schemaVersion is bumped whenever runBootstrapDDL changes shape.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction, meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: verdict column on the check log.
	if err := s.migrateCheckVerdictColumn(); err != nil {
		return fmt.Errorf("migrating verdict column: %w", err)
	}

	// Schema evolution: lookup indexes for verification.
	if err := s.migrateLookupIndexes(); err != nil {
		return fmt.Errorf("migrating lookup indexes: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL CHECK (category IN ('work', 'collection', 'person')),
			name     TEXT NOT NULL,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (category, name)
		)`,

		`CREATE TABLE IF NOT EXISTS credits (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			work     TEXT NOT NULL,
			relation TEXT NOT NULL CHECK (relation IN ('performer', 'lyricist', 'composer')),
			person   TEXT NOT NULL,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (work, relation, person)
		)`,

		`CREATE TABLE IF NOT EXISTS checks (
			id           TEXT PRIMARY KEY,
			question     TEXT NOT NULL DEFAULT '',
			answer       TEXT NOT NULL,
			mode         TEXT NOT NULL,
			stage        TEXT NOT NULL DEFAULT '',
			triples_json TEXT NOT NULL DEFAULT '[]',
			supported    INTEGER NOT NULL DEFAULT 0,
			unsupported  INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// getMetaValue returns the value for key, or "" when unset.
func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateCheckVerdictColumn adds the verdict column to checks if it doesn't
// exist. Databases created before verdicts were logged get an empty value.
func (s *SQLiteStore) migrateCheckVerdictColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('checks') WHERE name='verdict'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking verdict column: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec("ALTER TABLE checks ADD COLUMN verdict TEXT NOT NULL DEFAULT ''")
	if err != nil && !isDuplicateColumnError(err) {
		return fmt.Errorf("adding verdict column: %w", err)
	}
	return nil
}

// migrateLookupIndexes adds the indexes used by credit lookups and the
// recent-checks listing.
func (s *SQLiteStore) migrateLookupIndexes() error {
	done, err := s.isMetaFlagEnabled("lookup_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_credits_work_relation ON credits(work, relation)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_created_at ON checks(created_at)`,
	}

	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating lookup index: %w", err)
		}
	}

	return s.setMetaFlag("lookup_indexes_v1")
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
