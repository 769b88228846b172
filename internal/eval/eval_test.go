package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/llm"
	"github.com/hurttlocker/hallucheck/internal/verify"
)

func testPipeline() *extract.Pipeline {
	dict := kb.New([]string{"七里香", "青花瓷", "夜曲"}, nil, []string{"周杰伦", "方文山"})
	return extract.NewPipeline(dict)
}

func answeredCases() []Case {
	cases := DefaultCases()
	cases[0].Answer = "七里香是周杰伦演唱的。"
	cases[1].Answer = "青花瓷的作词人是周杰伦。"
	cases[2].Answer = "周杰伦演唱过七里香和青花瓷。"
	cases[3].Answer = "未知"
	cases[4].Answer = "收录在《十一月的肖邦》。"
	return cases
}

func testCredits() verify.CreditSet {
	return verify.CreditSet{
		{Head: "七里香", Relation: extract.Performer, Tail: "周杰伦"}: true,
		{Head: "青花瓷", Relation: extract.Performer, Tail: "周杰伦"}: true,
		{Head: "青花瓷", Relation: extract.Lyricist, Tail: "方文山"}:  true,
	}
}

func TestRunAndScore(t *testing.T) {
	r := &Runner{Extractor: testPipeline(), Credits: testCredits(), Concurrency: 2}
	results, err := r.Run(context.Background(), answeredCases())
	require.NoError(t, err)
	require.Len(t, results, 5)

	// Results come back in input order regardless of scheduling.
	for i, c := range answeredCases() {
		assert.Equal(t, c.Question, results[i].Case.Question)
		assert.False(t, results[i].Generated)
	}

	assert.Equal(t, []extract.Triple{{Head: "七里香", Relation: extract.Performer, Tail: "周杰伦"}}, results[0].Result.Triples)
	assert.Equal(t, verify.Hallucination, results[1].Report.Verdict)
	assert.Equal(t, verify.Supported, results[2].Report.Verdict)
	assert.Equal(t, verify.InsufficientEvidence, results[3].Report.Verdict)

	m := Score(results)
	assert.Equal(t, 5, m.Total)
	assert.Equal(t, 5, m.KeywordCases)
	assert.Equal(t, 3, m.KeywordCorrect)
	assert.InDelta(t, 0.6, m.Accuracy, 1e-9)

	// The album case is unscored: its relation is outside the closed set.
	assert.Equal(t, 3, m.TripleCases)
	assert.Equal(t, 1, m.TP)
	assert.Equal(t, 1, m.FP)
	assert.Equal(t, 2, m.FN)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 1.0/3.0, m.Recall, 1e-9)
	assert.InDelta(t, 0.4, m.F1, 1e-9)

	assert.Equal(t, 1, m.Hallucinations)
	assert.InDelta(t, 0.2, m.HallucinationRate, 1e-9)
}

func TestRunWithoutCredits(t *testing.T) {
	r := &Runner{Extractor: testPipeline()}
	results, err := r.Run(context.Background(), answeredCases())
	require.NoError(t, err)
	for _, res := range results {
		assert.Nil(t, res.Report)
	}
	assert.Zero(t, Score(results).HallucinationRate)
}

type stubProvider struct {
	text string
	err  error
}

func (s stubProvider) Name() string { return "stub/test" }

func (s stubProvider) Complete(context.Context, string, llm.CompletionOpts) (string, error) {
	return s.text, s.err
}

func TestRunGeneratesMissingAnswers(t *testing.T) {
	cases := []Case{{Question: "七里香是谁唱的？", Keywords: []string{"周杰伦"}}}

	r := &Runner{Extractor: testPipeline(), Provider: stubProvider{text: "答案：**周杰伦**"}}
	results, err := r.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.True(t, results[0].Generated)
	assert.Equal(t, "周杰伦", results[0].Answer)
	assert.True(t, KeywordHit(results[0].Answer, cases[0].Keywords))

	r.Provider = stubProvider{err: errors.New("connection refused")}
	results, err = r.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, llm.UnknownAnswer, results[0].Answer)
	assert.Empty(t, results[0].Result.Triples)

	r.Provider = nil
	results, err = r.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, llm.UnknownAnswer, results[0].Answer)
}

type brokenIndex struct{}

func (brokenIndex) HasCredit(context.Context, extract.Triple) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestRunAbortsOnLookupError(t *testing.T) {
	r := &Runner{Extractor: testPipeline(), Credits: brokenIndex{}}
	_, err := r.Run(context.Background(), answeredCases())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestNormalizeText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"《七里香》", "七里香"},
		{" 周 杰伦。", "周杰伦"},
		{"“十一月的肖邦”！", "十一月的肖邦"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeText(tt.in), tt.in)
	}
}

func TestKeywordHit(t *testing.T) {
	assert.True(t, KeywordHit("这首歌是周 杰伦唱的", []string{"周杰伦"}))
	assert.True(t, KeywordHit("收录于十一月的肖邦", []string{"《十一月的肖邦》"}))
	assert.False(t, KeywordHit("方文山", []string{"周杰伦"}))
	assert.False(t, KeywordHit("周杰伦", nil))
}

func TestLoadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.yaml")
	data := `cases:
  - question: 七里香是谁唱的？
    answer: 周杰伦
    keywords: [周杰伦]
    expected_triples:
      - {head: 七里香, relation: 歌手, tail: 周杰伦}
  - question: 发如雪收录在哪张专辑？
    keywords: [十一月的肖邦]
    expected_triples:
      - {head: 发如雪, relation: 所属专辑, tail: 十一月的肖邦}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cases, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "周杰伦", cases[0].Answer)
	assert.Equal(t, []extract.Triple{{Head: "七里香", Relation: extract.Performer, Tail: "周杰伦"}}, cases[0].scoredExpected())
	assert.Empty(t, cases[1].scoredExpected())

	_, err = ParseCases([]byte("cases:\n  - keywords: [x]\n"))
	require.Error(t, err)

	_, err = LoadCases(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	results, err := (&Runner{Extractor: testPipeline(), Credits: testCredits()}).Run(context.Background(), answeredCases())
	require.NoError(t, err)
	out := RenderReport(results, Score(results))

	assert.True(t, strings.HasPrefix(out, "Hallucheck evaluation report\n"))
	assert.Contains(t, out, "Q: 七里香是谁唱的？")
	assert.Contains(t, out, "Extracted (fallback): [(七里香, performer, 周杰伦)]")
	assert.Contains(t, out, "Extracted (none): []")
	assert.Contains(t, out, "Verdict: hallucination")
	assert.Contains(t, out, "Accuracy (keyword match): 60.00% (3/5)")
	assert.Contains(t, out, "Triple cases: 3")
	assert.Contains(t, out, "F1: 40.00%")
}
