// Package store provides the SQLite storage layer for hallucheck.
//
// One database file holds:
// - The music knowledge base: named entities per category and the
//   (work, relation, person) credits used to verify claims
// - A log of every check run through the CLI or MCP server
// - A small meta table for schema bookkeeping
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.hallucheck/hallucheck.db"

// CheckRecord is one logged verification run.
type CheckRecord struct {
	ID          string           `json:"id"`
	Question    string           `json:"question,omitempty"`
	Answer      string           `json:"answer"`
	Mode        string           `json:"mode"`
	Stage       string           `json:"stage,omitempty"`
	Triples     []extract.Triple `json:"triples"`
	Supported   int              `json:"supported"`
	Unsupported int              `json:"unsupported"`
	Verdict     string           `json:"verdict"`
	CreatedAt   time.Time        `json:"created_at"`
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	Works       int64
	Collections int64
	Persons     int64
	Credits     int64
	Checks      int64
	DBSizeBytes int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the storage interface.
type Store interface {
	// Knowledge base
	AddEntity(ctx context.Context, cat kb.Category, name string) error
	AddCredit(ctx context.Context, t extract.Triple) error
	Names(ctx context.Context, cat kb.Category) ([]string, error)
	HasCredit(ctx context.Context, t extract.Triple) (bool, error)
	CreditsFor(ctx context.Context, work string, rel extract.Relation) ([]string, error)
	ImportSeed(ctx context.Context, seed *kb.Seed) (*ImportResult, error)

	// Check log
	RecordCheck(ctx context.Context, rec *CheckRecord) (string, error)
	RecentChecks(ctx context.Context, limit int) ([]*CheckRecord, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ kb.Source = (*SQLiteStore)(nil)

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	return Open(cfg)
}

// Open is NewStore returning the concrete type.
func Open(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts per table and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		args  []any
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM entities WHERE category = ?", []any{string(kb.Work)}, &stats.Works},
		{"SELECT COUNT(*) FROM entities WHERE category = ?", []any{string(kb.Collection)}, &stats.Collections},
		{"SELECT COUNT(*) FROM entities WHERE category = ?", []any{string(kb.Person)}, &stats.Persons},
		{"SELECT COUNT(*) FROM credits", nil, &stats.Credits},
		{"SELECT COUNT(*) FROM checks", nil, &stats.Checks},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	// Get DB size (only works for file-based DBs)
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
