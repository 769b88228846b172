package kb

import (
	"context"
	"fmt"
	"log/slog"
)

// Source is the read-only knowledge-base query interface: one flat list of
// names per category.
type Source interface {
	Names(ctx context.Context, cat Category) ([]string, error)
}

// Load queries src for all three categories and builds a Dictionary.
//
// Load never fails. If any query errors, the failure is logged and an empty
// dictionary is returned, so extraction degrades to "no checkable claim"
// instead of crashing the caller.
func Load(ctx context.Context, src Source, logger *slog.Logger) *Dictionary {
	if logger == nil {
		logger = slog.Default()
	}
	if src == nil {
		logger.Warn("no knowledge-base source configured, using empty dictionary")
		return Empty()
	}

	names := make(map[Category][]string, 3)
	for _, cat := range Categories() {
		list, err := src.Names(ctx, cat)
		if err != nil {
			logger.Warn("loading entity list failed, using empty dictionary",
				"category", string(cat), "error", err)
			return Empty()
		}
		names[cat] = list
	}

	d := New(names[Work], names[Collection], names[Person])
	counts := d.Counts()
	logger.Info("entity dictionary loaded",
		"works", counts[Work],
		"collections", counts[Collection],
		"persons", counts[Person])
	return d
}

// StaticSource serves fixed name lists. Useful for tests and for building a
// dictionary from an already parsed seed.
type StaticSource map[Category][]string

// Names implements Source.
func (s StaticSource) Names(_ context.Context, cat Category) ([]string, error) {
	switch cat {
	case Work, Collection, Person:
		return s[cat], nil
	default:
		return nil, fmt.Errorf("unknown category %q", cat)
	}
}
