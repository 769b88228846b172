// Package extract turns free-text model answers into (head, relation, tail)
// triples that can be checked against the music knowledge base.
//
// Extraction runs as an ordered list of strategies, first non-empty result
// wins:
//  1. Model-assisted: ask the generator for a JSON list of triples and
//     validate every candidate.
//  2. Contextual rules: recover relation and subject from the question and
//     isolate the object from a short answer.
//  3. Keyword fallback: pair recognized songs with recognized people using
//     relation trigger words.
//
// No stage ever returns an error to the caller. An empty result means "no
// checkable claim", never a system fault.
package extract

import "fmt"

// Mode selects how strictly a triple's tail is accepted.
type Mode int

const (
	// Grounded accepts only tails that are known Persons.
	Grounded Mode = iota
	// Ungrounded also accepts plausible, well-formed names missing from the
	// knowledge base.
	Ungrounded
)

func (m Mode) String() string {
	if m == Ungrounded {
		return "ungrounded"
	}
	return "grounded"
}

// ParseMode parses "grounded" or "ungrounded".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "grounded":
		return Grounded, nil
	case "ungrounded":
		return Ungrounded, nil
	default:
		return Grounded, fmt.Errorf("invalid mode %q (expected grounded or ungrounded)", s)
	}
}

// Triple is one extracted claim.
type Triple struct {
	Head     string   `json:"head"`
	Relation Relation `json:"relation"`
	Tail     string   `json:"tail"`
}

func (t Triple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Head, t.Relation, t.Tail)
}

func dedupeTriples(triples []Triple) []Triple {
	seen := make(map[Triple]bool, len(triples))
	var out []Triple
	for _, t := range triples {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
