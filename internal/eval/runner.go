package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/llm"
	"github.com/hurttlocker/hallucheck/internal/verify"
)

// DefaultConcurrency bounds concurrent cases.
const DefaultConcurrency = 4

// Extractor is the extraction entry point under evaluation.
type Extractor interface {
	ExtractDetailed(ctx context.Context, answer, question string, mode extract.Mode) extract.Result
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case      Case
	Answer    string
	Generated bool
	Result    extract.Result
	Report    *verify.Report
}

// Runner evaluates cases against an extractor.
type Runner struct {
	Extractor   Extractor
	Mode        extract.Mode
	Provider    llm.Provider       // optional, answers cases without one
	Timeout     time.Duration      // per generation call
	Credits     verify.CreditIndex // optional, enables verdicts
	Concurrency int
	Logger      *slog.Logger
}

// Run evaluates every case concurrently and returns results in input order.
// Only a failing credit lookup aborts the run.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]CaseResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]CaseResult, len(cases))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for idx, c := range cases {
		g.Go(func() error {
			res := CaseResult{Case: c, Answer: c.Answer}
			if res.Answer == "" {
				answer, gen := llm.Answer(gCtx, r.Provider, c.Question, r.Timeout)
				if !gen.OK() {
					logger.Warn("answer generation failed", "question", c.Question, "outcome", gen.Kind.String(), "error", gen.Err)
				}
				res.Answer = answer
				res.Generated = true
			}

			res.Result = r.Extractor.ExtractDetailed(gCtx, res.Answer, c.Question, r.Mode)

			if r.Credits != nil {
				report, err := verify.Triples(gCtx, r.Credits, res.Result.Triples, res.Result.Stage)
				if err != nil {
					return fmt.Errorf("case %d (%s): %w", idx+1, c.Question, err)
				}
				res.Report = report
			}

			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
