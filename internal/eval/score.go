package eval

import (
	"regexp"
	"strings"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/verify"
)

// Metrics aggregates a run.
type Metrics struct {
	Total int `json:"total"`

	KeywordCases   int     `json:"keyword_cases"`
	KeywordCorrect int     `json:"keyword_correct"`
	Accuracy       float64 `json:"accuracy"`

	TripleCases int     `json:"triple_cases"`
	TP          int     `json:"tp"`
	FP          int     `json:"fp"`
	FN          int     `json:"fn"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`

	// Hallucinations counts cases judged as hallucination. It stays zero
	// when the run had no credit index.
	Hallucinations    int     `json:"hallucinations"`
	HallucinationRate float64 `json:"hallucination_rate"`
}

var whitespaceRE = regexp.MustCompile(`\s+`)

const edgePunct = " ,，。.!！？?;；:：\"'“”‘’（）()[]【】《》"

// normalizeText removes all whitespace and trims surrounding punctuation so
// "《七里香》" and "七里香" compare equal.
func normalizeText(s string) string {
	s = whitespaceRE.ReplaceAllString(s, "")
	return strings.Trim(s, edgePunct)
}

// KeywordHit reports whether answer contains any keyword after
// normalization. A case without keywords never hits.
func KeywordHit(answer string, keywords []string) bool {
	norm := normalizeText(answer)
	for _, k := range keywords {
		if nk := normalizeText(k); nk != "" && strings.Contains(norm, nk) {
			return true
		}
	}
	return false
}

type tripleKey struct {
	head, rel, tail string
}

func normalizedSet(ts []extract.Triple) map[tripleKey]struct{} {
	out := make(map[tripleKey]struct{}, len(ts))
	for _, t := range ts {
		out[tripleKey{normalizeText(t.Head), string(t.Relation), normalizeText(t.Tail)}] = struct{}{}
	}
	return out
}

// Score computes accuracy, triple precision/recall/F1 and the hallucination
// rate. Triples are scored only on cases with at least one expected triple
// in the closed relation set.
func Score(results []CaseResult) Metrics {
	m := Metrics{Total: len(results)}
	for _, r := range results {
		if len(r.Case.Keywords) > 0 {
			m.KeywordCases++
			if KeywordHit(r.Answer, r.Case.Keywords) {
				m.KeywordCorrect++
			}
		}

		if r.Report != nil && r.Report.Verdict == verify.Hallucination {
			m.Hallucinations++
		}

		expected := normalizedSet(r.Case.scoredExpected())
		if len(expected) == 0 {
			continue
		}
		m.TripleCases++
		got := normalizedSet(r.Result.Triples)
		for k := range got {
			if _, ok := expected[k]; ok {
				m.TP++
			} else {
				m.FP++
			}
		}
		for k := range expected {
			if _, ok := got[k]; !ok {
				m.FN++
			}
		}
	}

	m.Accuracy = ratio(m.KeywordCorrect, m.KeywordCases)
	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.HallucinationRate = ratio(m.Hallucinations, m.Total)
	return m
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
