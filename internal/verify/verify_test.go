package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
)

var (
	lyricsByFang    = extract.Triple{Head: "青花瓷", Relation: extract.Lyricist, Tail: "方文山"}
	sungByJay       = extract.Triple{Head: "青花瓷", Relation: extract.Performer, Tail: "周杰伦"}
	lyricsByJayFake = extract.Triple{Head: "青花瓷", Relation: extract.Lyricist, Tail: "周杰伦"}
)

func testPipeline() *extract.Pipeline {
	dict := kb.New([]string{"青花瓷"}, nil, []string{"周杰伦", "方文山"})
	return extract.NewPipeline(dict)
}

func TestCheckVerdicts(t *testing.T) {
	credits := CreditSet{lyricsByFang: true, sungByJay: true}
	checker := NewChecker(testPipeline(), credits)

	tests := []struct {
		name        string
		answer      string
		verdict     Verdict
		supported   int
		unsupported int
	}{
		{"supported", "青花瓷由周杰伦演唱，方文山作词。", Supported, 2, 0},
		{"hallucination", "青花瓷由周杰伦作词。", Hallucination, 0, 1},
		{"unknown answer", "未知", InsufficientEvidence, 0, 0},
		{"no claim", "这首歌很好听。", InsufficientEvidence, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := checker.Check(context.Background(), tt.answer, "", extract.Grounded)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, r.Verdict)
			assert.Len(t, r.Supported, tt.supported)
			assert.Len(t, r.Unsupported, tt.unsupported)
			assert.NotNil(t, r.Triples)
		})
	}
}

func TestCheckReportsStage(t *testing.T) {
	checker := NewChecker(testPipeline(), CreditSet{})
	r, err := checker.Check(context.Background(), "青花瓷由周杰伦作词。", "", extract.Grounded)
	require.NoError(t, err)
	assert.Equal(t, extract.StageFallback, r.Stage)
	assert.Equal(t, []extract.Triple{lyricsByJayFake}, r.Unsupported)
}

type failingIndex struct{}

func (failingIndex) HasCredit(context.Context, extract.Triple) (bool, error) {
	return false, errors.New("database is locked")
}

func TestTriplesLookupError(t *testing.T) {
	_, err := Triples(context.Background(), failingIndex{}, []extract.Triple{sungByJay}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	// No triples means no lookups, so a broken index is never consulted.
	r, err := Triples(context.Background(), failingIndex{}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, InsufficientEvidence, r.Verdict)
}

// creditTable is a CreditIndex that can also list credited people.
type creditTable struct {
	CreditSet
}

func (c creditTable) CreditsFor(_ context.Context, work string, rel extract.Relation) ([]string, error) {
	var names []string
	for t, ok := range c.CreditSet {
		if ok && t.Head == work && t.Relation == rel {
			names = append(names, t.Tail)
		}
	}
	return names, nil
}

func TestCheckSuggestsCorrections(t *testing.T) {
	index := creditTable{CreditSet{lyricsByFang: true, sungByJay: true}}
	checker := NewChecker(testPipeline(), index)

	r, err := checker.Check(context.Background(), "青花瓷由周杰伦作词。", "", extract.Grounded)
	require.NoError(t, err)
	require.Len(t, r.Corrections, 1)
	assert.Equal(t, lyricsByJayFake, r.Corrections[0].Claim)
	assert.Equal(t, []string{"方文山"}, r.Corrections[0].Credited)

	r, err = checker.Check(context.Background(), "青花瓷由周杰伦演唱。", "", extract.Grounded)
	require.NoError(t, err)
	assert.Equal(t, Supported, r.Verdict)
	assert.Empty(t, r.Corrections)
}

func TestCheckPlainIndexHasNoCorrections(t *testing.T) {
	checker := NewChecker(testPipeline(), CreditSet{lyricsByFang: true})
	r, err := checker.Check(context.Background(), "青花瓷由周杰伦作词。", "", extract.Grounded)
	require.NoError(t, err)
	assert.Equal(t, Hallucination, r.Verdict)
	assert.Nil(t, r.Corrections)
}
