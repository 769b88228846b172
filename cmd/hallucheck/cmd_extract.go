package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/llm"
	"github.com/hurttlocker/hallucheck/internal/store"
	"github.com/hurttlocker/hallucheck/internal/verify"
)

// ErrHallucination is returned by check and ask with --fail-on-hallucination.
var ErrHallucination = errors.New("answer contains unsupported claims")

type extractOutput struct {
	Mode    string           `json:"mode"`
	Stage   string           `json:"stage,omitempty"`
	Triples []extract.Triple `json:"triples"`
}

func extractCmd(g *globalFlags) *cobra.Command {
	var questionText string

	cmd := &cobra.Command{
		Use:   "extract [answer]",
		Short: "Extract music claims from a model answer",
		Long: `Extract (work, relation, person) triples from a model answer.
The answer is read from the arguments or, when none are given, from stdin.

Examples:
  hallucheck extract "青花瓷由周杰伦演唱，方文山作词。"
  hallucheck extract -q "七里香是谁唱的？" "周杰伦"
  echo "未知" | hallucheck extract --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				res := a.pipeline.ExtractDetailed(ctx, answer, questionText, a.mode)
				out := extractOutput{Mode: a.mode.String(), Stage: res.Stage, Triples: res.Triples}
				if out.Triples == nil {
					out.Triples = []extract.Triple{}
				}
				if g.jsonOut {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				printTriples(cmd.OutOrStdout(), out.Stage, out.Triples)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&questionText, "question", "q", "", "Question the answer responds to")
	return cmd
}

func printTriples(w io.Writer, stage string, triples []extract.Triple) {
	if len(triples) == 0 {
		fmt.Fprintln(w, "No checkable claim found.")
		return
	}
	fmt.Fprintf(w, "Stage: %s\n", stage)
	for _, t := range triples {
		fmt.Fprintln(w, formatTriple(t))
	}
}

func checkCmd(g *globalFlags) *cobra.Command {
	var (
		questionText string
		failOnHall   bool
	)

	cmd := &cobra.Command{
		Use:   "check [answer]",
		Short: "Verify the claims in a model answer against the knowledge base",
		Long: `Extract claims from a model answer and verify each one against the
knowledge-base credits. Every check is recorded in the check log.

Examples:
  hallucheck check "青花瓷由周杰伦作词。"
  hallucheck check --fail-on-hallucination -q "青花瓷的作词人是谁？" "周杰伦"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				report, err := a.check(ctx, questionText, answer)
				if err != nil {
					return err
				}
				if err := renderReport(cmd.OutOrStdout(), g.jsonOut, "", report); err != nil {
					return err
				}
				if failOnHall && report.Verdict == verify.Hallucination {
					return ErrHallucination
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&questionText, "question", "q", "", "Question the answer responds to")
	cmd.Flags().BoolVar(&failOnHall, "fail-on-hallucination", false, "Exit non-zero when any claim is unsupported")
	return cmd
}

func askCmd(g *globalFlags) *cobra.Command {
	var failOnHall bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the generator a question and check its answer",
		Long: `Ask the configured generator a music question, then extract and verify
the claims in its answer. A failed or timed out generation is answered
with 未知, which never yields a claim.

Examples:
  hallucheck ask "七里香是谁唱的？"
  hallucheck ask --llm openai/gpt-4o-mini --json "夜曲的作曲是谁？"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			questionText, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				if a.provider == nil {
					return fmt.Errorf("ask needs a generator; set --llm or llm.provider")
				}
				timeout, _ := a.cfg.Timeout()
				answer, gen := llm.Answer(ctx, a.provider, questionText, timeout)
				if !gen.OK() {
					a.logger.Warn("answer generation failed", "outcome", gen.Kind.String(), "error", gen.Err)
				}
				report, err := a.check(ctx, questionText, answer)
				if err != nil {
					return err
				}
				if err := renderReport(cmd.OutOrStdout(), g.jsonOut, answer, report); err != nil {
					return err
				}
				if failOnHall && report.Verdict == verify.Hallucination {
					return ErrHallucination
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnHall, "fail-on-hallucination", false, "Exit non-zero when any claim is unsupported")
	return cmd
}

// check verifies answer and records the result in the check log. A logging
// failure is reported but does not fail the check.
func (a *app) check(ctx context.Context, questionText, answer string) (*verify.Report, error) {
	report, err := verify.NewChecker(a.pipeline, a.store).Check(ctx, answer, questionText, a.mode)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.RecordCheck(ctx, &store.CheckRecord{
		Question:    questionText,
		Answer:      answer,
		Mode:        a.mode.String(),
		Stage:       report.Stage,
		Triples:     report.Triples,
		Supported:   len(report.Supported),
		Unsupported: len(report.Unsupported),
		Verdict:     string(report.Verdict),
	}); err != nil {
		a.logger.Warn("recording check failed", "error", err)
	}
	return report, nil
}

type askOutput struct {
	Answer string `json:"answer"`
	*verify.Report
}

func renderReport(w io.Writer, asJSON bool, answer string, r *verify.Report) error {
	if asJSON {
		if answer != "" {
			return writeJSON(w, askOutput{Answer: answer, Report: r})
		}
		return writeJSON(w, r)
	}
	if answer != "" {
		fmt.Fprintf(w, "Answer: %s\n", answer)
	}
	fmt.Fprintf(w, "Verdict: %s\n", r.Verdict)
	if r.Stage != "" {
		fmt.Fprintf(w, "Stage: %s\n", r.Stage)
	}
	for _, t := range r.Supported {
		fmt.Fprintf(w, "  ok    %s\n", formatTriple(t))
	}
	for _, t := range r.Unsupported {
		fmt.Fprintf(w, "  FAIL  %s\n", formatTriple(t))
	}
	for _, c := range r.Corrections {
		fmt.Fprintf(w, "  knowledge base credits %s with %s: %v\n", c.Claim.Head, c.Claim.Relation, c.Credited)
	}
	return nil
}

func recognizeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recognize [text]",
		Short: "List known works, collections and people in a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				ents := a.dict.Recognize(text)
				if g.jsonOut {
					out := map[string][]string{}
					for _, cat := range kb.Categories() {
						out[string(cat)] = nonNilStrings(ents[cat])
					}
					return writeJSON(cmd.OutOrStdout(), out)
				}
				for _, cat := range kb.Categories() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-11s %v\n", string(cat)+":", ents[cat])
				}
				return nil
			})
		},
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
