// Package verify checks extracted claims against the knowledge base's
// credits and turns them into a verdict.
package verify

import (
	"context"
	"fmt"

	"github.com/hurttlocker/hallucheck/internal/extract"
)

// Verdict summarizes a checked answer.
type Verdict string

const (
	// InsufficientEvidence means no checkable claim was extracted.
	InsufficientEvidence Verdict = "insufficient_evidence"
	// Hallucination means at least one claim is not backed by the knowledge base.
	Hallucination Verdict = "hallucination"
	// Supported means every extracted claim is backed by the knowledge base.
	Supported Verdict = "supported"
)

// CreditIndex answers whether a claim is recorded in the knowledge base.
type CreditIndex interface {
	HasCredit(ctx context.Context, t extract.Triple) (bool, error)
}

// Extractor is the extraction entry point the checker drives.
type Extractor interface {
	ExtractDetailed(ctx context.Context, answer, question string, mode extract.Mode) extract.Result
}

// Report is the outcome of checking one answer.
type Report struct {
	Triples     []extract.Triple `json:"triples"`
	Supported   []extract.Triple `json:"supported"`
	Unsupported []extract.Triple `json:"unsupported"`
	Stage       string           `json:"stage,omitempty"`
	Verdict     Verdict          `json:"verdict"`
	Corrections []Correction     `json:"corrections,omitempty"`
}

// CreditLookup lists the people the knowledge base credits for a work and
// relation. A CreditIndex that also implements it lets the checker suggest
// corrections.
type CreditLookup interface {
	CreditsFor(ctx context.Context, work string, rel extract.Relation) ([]string, error)
}

// Correction pairs an unsupported claim with the people the knowledge base
// actually credits for the same work and relation.
type Correction struct {
	Claim    extract.Triple `json:"claim"`
	Credited []string       `json:"credited"`
}

// Checker extracts claims from an answer and verifies each one.
type Checker struct {
	extractor Extractor
	index     CreditIndex
}

// NewChecker returns a Checker.
func NewChecker(e Extractor, index CreditIndex) *Checker {
	return &Checker{extractor: e, index: index}
}

// Check extracts and verifies the claims in answer. An answer with no
// extractable claim is reported as insufficient evidence, not as an error;
// only a failing credit lookup returns an error.
func (c *Checker) Check(ctx context.Context, answer, question string, mode extract.Mode) (*Report, error) {
	res := c.extractor.ExtractDetailed(ctx, answer, question, mode)
	r, err := Triples(ctx, c.index, res.Triples, res.Stage)
	if err != nil {
		return nil, err
	}
	if lookup, ok := c.index.(CreditLookup); ok {
		if r.Corrections, err = Corrections(ctx, lookup, r.Unsupported); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Corrections looks up the credited people for every unsupported claim.
// Claims about works the knowledge base has no credit for are skipped.
func Corrections(ctx context.Context, lookup CreditLookup, unsupported []extract.Triple) ([]Correction, error) {
	var out []Correction
	for _, t := range unsupported {
		names, err := lookup.CreditsFor(ctx, t.Head, t.Relation)
		if err != nil {
			return nil, fmt.Errorf("looking up credits for %s: %w", t, err)
		}
		if len(names) == 0 {
			continue
		}
		out = append(out, Correction{Claim: t, Credited: names})
	}
	return out, nil
}

// Triples verifies already extracted triples.
func Triples(ctx context.Context, index CreditIndex, triples []extract.Triple, stage string) (*Report, error) {
	r := &Report{
		Triples:     nonNil(triples),
		Supported:   []extract.Triple{},
		Unsupported: []extract.Triple{},
		Stage:       stage,
	}
	for _, t := range triples {
		ok, err := index.HasCredit(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("verifying %s: %w", t, err)
		}
		if ok {
			r.Supported = append(r.Supported, t)
		} else {
			r.Unsupported = append(r.Unsupported, t)
		}
	}

	switch {
	case len(triples) == 0:
		r.Verdict = InsufficientEvidence
	case len(r.Unsupported) > 0:
		r.Verdict = Hallucination
	default:
		r.Verdict = Supported
	}
	return r, nil
}

func nonNil(ts []extract.Triple) []extract.Triple {
	if ts == nil {
		return []extract.Triple{}
	}
	return ts
}

// CreditSet is an in-memory CreditIndex.
type CreditSet map[extract.Triple]bool

// HasCredit implements CreditIndex.
func (s CreditSet) HasCredit(_ context.Context, t extract.Triple) (bool, error) {
	return s[t], nil
}
