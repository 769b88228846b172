package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
)

// ImportResult summarizes a seed import.
type ImportResult struct {
	EntitiesAdded int `json:"entities_added"`
	CreditsAdded  int `json:"credits_added"`
	Skipped       int `json:"skipped"`
}

func validCategory(cat kb.Category) bool {
	for _, c := range kb.Categories() {
		if c == cat {
			return true
		}
	}
	return false
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AddEntity registers a named entity. Adding an existing name is a no-op.
func (s *SQLiteStore) AddEntity(ctx context.Context, cat kb.Category, name string) error {
	_, err := addEntity(ctx, s.db, cat, name)
	return err
}

func addEntity(ctx context.Context, db execer, cat kb.Category, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("entity name is empty")
	}
	if !validCategory(cat) {
		return false, fmt.Errorf("unknown entity category %q", cat)
	}
	res, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO entities (category, name) VALUES (?, ?)",
		string(cat), name,
	)
	if err != nil {
		return false, fmt.Errorf("inserting entity %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddCredit records that t.Tail holds relation t.Relation on work t.Head.
// The work and person are registered as entities if missing.
func (s *SQLiteStore) AddCredit(ctx context.Context, t extract.Triple) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := addCredit(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func addCredit(ctx context.Context, db execer, t extract.Triple) (bool, error) {
	if !t.Relation.Valid() {
		return false, fmt.Errorf("unknown relation %q", t.Relation)
	}
	head, tail := strings.TrimSpace(t.Head), strings.TrimSpace(t.Tail)
	if head == "" || tail == "" {
		return false, fmt.Errorf("credit needs a work and a person")
	}
	if _, err := addEntity(ctx, db, kb.Work, head); err != nil {
		return false, err
	}
	if _, err := addEntity(ctx, db, kb.Person, tail); err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO credits (work, relation, person) VALUES (?, ?, ?)",
		head, string(t.Relation), tail,
	)
	if err != nil {
		return false, fmt.Errorf("inserting credit %s: %w", t, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Names returns every entity name in cat. It implements kb.Source.
func (s *SQLiteStore) Names(ctx context.Context, cat kb.Category) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM entities WHERE category = ? ORDER BY name", string(cat),
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s names: %w", cat, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasCredit reports whether the knowledge base records t.
func (s *SQLiteStore) HasCredit(ctx context.Context, t extract.Triple) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credits WHERE work = ? AND relation = ? AND person = ?",
		t.Head, string(t.Relation), t.Tail,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up credit %s: %w", t, err)
	}
	return n > 0, nil
}

// CreditsFor returns the persons credited with rel on work.
func (s *SQLiteStore) CreditsFor(ctx context.Context, work string, rel extract.Relation) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT person FROM credits WHERE work = ? AND relation = ? ORDER BY person",
		work, string(rel),
	)
	if err != nil {
		return nil, fmt.Errorf("querying credits for %s: %w", work, err)
	}
	defer rows.Close()

	var people []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// ImportSeed loads a seed into the knowledge base in one transaction. Names
// and credits already present are counted as skipped.
func (s *SQLiteStore) ImportSeed(ctx context.Context, seed *kb.Seed) (*ImportResult, error) {
	if seed == nil {
		return &ImportResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	result := &ImportResult{}
	lists := []struct {
		cat   kb.Category
		names []string
	}{
		{kb.Work, seed.Works},
		{kb.Collection, seed.Collections},
		{kb.Person, seed.Persons},
	}
	for _, l := range lists {
		for _, name := range l.names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			added, err := addEntity(ctx, tx, l.cat, name)
			if err != nil {
				return nil, err
			}
			if added {
				result.EntitiesAdded++
			} else {
				result.Skipped++
			}
		}
	}

	for _, c := range seed.Credits {
		rel, ok := extract.ParseRelation(c.Relation)
		if !ok {
			return nil, fmt.Errorf("credit %s/%s: unknown relation %q", c.Work, c.Person, c.Relation)
		}
		added, err := addCredit(ctx, tx, extract.Triple{Head: c.Work, Relation: rel, Tail: c.Person})
		if err != nil {
			return nil, err
		}
		if added {
			result.CreditsAdded++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	return result, nil
}
