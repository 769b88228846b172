package eval

import (
	"fmt"
	"strings"

	"github.com/hurttlocker/hallucheck/internal/extract"
)

// RenderReport formats a run as plain text.
func RenderReport(results []CaseResult, m Metrics) string {
	var b strings.Builder
	b.WriteString("Hallucheck evaluation report\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")

	for _, r := range results {
		b.WriteString(fmt.Sprintf("Q: %s\n", r.Case.Question))
		src := "given"
		if r.Generated {
			src = "generated"
		}
		b.WriteString(fmt.Sprintf("  Answer (%s): %s\n", src, r.Answer))
		if len(r.Case.Keywords) > 0 {
			b.WriteString(fmt.Sprintf("  Keyword hit: %t\n", KeywordHit(r.Answer, r.Case.Keywords)))
		}
		stage := r.Result.Stage
		if stage == "" {
			stage = "none"
		}
		b.WriteString(fmt.Sprintf("  Extracted (%s): %s\n", stage, formatTriples(r.Result.Triples)))
		if exp := r.Case.scoredExpected(); len(exp) > 0 {
			b.WriteString(fmt.Sprintf("  Expected: %s\n", formatTriples(exp)))
		}
		if r.Report != nil {
			b.WriteString(fmt.Sprintf("  Verdict: %s\n", r.Report.Verdict))
		}
		b.WriteString(strings.Repeat("-", 30) + "\n")
	}

	b.WriteString(fmt.Sprintf("\nTotal questions: %d\n", m.Total))
	if m.KeywordCases > 0 {
		b.WriteString(fmt.Sprintf("Accuracy (keyword match): %.2f%% (%d/%d)\n", m.Accuracy*100, m.KeywordCorrect, m.KeywordCases))
	} else {
		b.WriteString("Accuracy (keyword match): N/A\n")
	}
	b.WriteString(fmt.Sprintf("Hallucination rate: %.2f%%\n", m.HallucinationRate*100))
	b.WriteString(fmt.Sprintf("Triple cases: %d\n", m.TripleCases))
	b.WriteString("Triple extraction (supported relations only)\n")
	b.WriteString(fmt.Sprintf("  Precision: %.2f%%\n", m.Precision*100))
	b.WriteString(fmt.Sprintf("  Recall: %.2f%%\n", m.Recall*100))
	b.WriteString(fmt.Sprintf("  F1: %.2f%%\n", m.F1*100))
	return b.String()
}

func formatTriples(ts []extract.Triple) string {
	if len(ts) == 0 {
		return "[]"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
