package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/hallucheck/internal/extract"
)

// DefaultRecentChecks is the listing size when no limit is given.
const DefaultRecentChecks = 20

// checkTimeLayout is fixed width so created_at sorts lexically.
const checkTimeLayout = "2006-01-02T15:04:05.000000000Z"

// RecordCheck appends rec to the check log and returns its id. A missing id
// or timestamp is filled in.
func (s *SQLiteStore) RecordCheck(ctx context.Context, rec *CheckRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	triples := rec.Triples
	if triples == nil {
		triples = []extract.Triple{}
	}
	triplesJSON, err := json.Marshal(triples)
	if err != nil {
		return "", fmt.Errorf("encoding triples: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checks (id, question, answer, mode, stage, triples_json, supported, unsupported, verdict, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Answer, rec.Mode, rec.Stage, string(triplesJSON),
		rec.Supported, rec.Unsupported, rec.Verdict, rec.CreatedAt.UTC().Format(checkTimeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("inserting check: %w", err)
	}
	return rec.ID, nil
}

// RecentChecks returns the newest checks first.
func (s *SQLiteStore) RecentChecks(ctx context.Context, limit int) ([]*CheckRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentChecks
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, mode, stage, triples_json, supported, unsupported, verdict, created_at
		 FROM checks ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying checks: %w", err)
	}
	defer rows.Close()

	var out []*CheckRecord
	for rows.Next() {
		var (
			rec         CheckRecord
			triplesJSON string
			createdAt   string
		)
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &rec.Mode, &rec.Stage,
			&triplesJSON, &rec.Supported, &rec.Unsupported, &rec.Verdict, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning check: %w", err)
		}
		if err := json.Unmarshal([]byte(triplesJSON), &rec.Triples); err != nil {
			return nil, fmt.Errorf("decoding triples for check %s: %w", rec.ID, err)
		}
		if t, err := time.Parse(checkTimeLayout, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
