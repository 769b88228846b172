// Package eval measures answer accuracy and triple extraction quality over a
// set of golden question cases.
package eval

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/hallucheck/internal/extract"
)

// ExpectedTriple is a gold triple. Relation may be any label; only the
// closed relation set is scored.
type ExpectedTriple struct {
	Head     string `yaml:"head" json:"head"`
	Relation string `yaml:"relation" json:"relation"`
	Tail     string `yaml:"tail" json:"tail"`
}

// Case is one golden question.
type Case struct {
	Question string `yaml:"question" json:"question"`
	// Answer is the model answer under test. When empty the runner asks the
	// configured generator.
	Answer   string           `yaml:"answer,omitempty" json:"answer,omitempty"`
	Keywords []string         `yaml:"keywords" json:"keywords"`
	Expected []ExpectedTriple `yaml:"expected_triples" json:"expected_triples"`
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads a YAML case file of the form:
//
//	cases:
//	  - question: 七里香是谁唱的？
//	    keywords: [周杰伦]
//	    expected_triples:
//	      - {head: 七里香, relation: 歌手, tail: 周杰伦}
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cases %s: %w", path, err)
	}
	return ParseCases(data)
}

// ParseCases parses YAML case data.
func ParseCases(data []byte) ([]Case, error) {
	var f caseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cases: %w", err)
	}
	for i, c := range f.Cases {
		if strings.TrimSpace(c.Question) == "" {
			return nil, fmt.Errorf("case %d: question is required", i+1)
		}
	}
	return f.Cases, nil
}

// DefaultCases is the built-in smoke set.
func DefaultCases() []Case {
	return []Case{
		{
			Question: "七里香是谁唱的？",
			Keywords: []string{"周杰伦"},
			Expected: []ExpectedTriple{{Head: "七里香", Relation: "歌手", Tail: "周杰伦"}},
		},
		{
			Question: "青花瓷的作词人是谁？",
			Keywords: []string{"方文山"},
			Expected: []ExpectedTriple{{Head: "青花瓷", Relation: "作词", Tail: "方文山"}},
		},
		{
			Question: "周杰伦演唱过什么歌曲？",
			Keywords: []string{"七里香", "青花瓷", "双截棍"},
		},
		{
			Question: "夜曲的作曲是谁？",
			Keywords: []string{"周杰伦"},
			Expected: []ExpectedTriple{{Head: "夜曲", Relation: "作曲", Tail: "周杰伦"}},
		},
		{
			Question: "发如雪收录在哪张专辑？",
			Keywords: []string{"十一月的肖邦"},
			Expected: []ExpectedTriple{{Head: "发如雪", Relation: "所属专辑", Tail: "十一月的肖邦"}},
		},
	}
}

// scoredExpected returns the expected triples whose relation is in the
// closed set.
func (c Case) scoredExpected() []extract.Triple {
	var out []extract.Triple
	for _, e := range c.Expected {
		rel, ok := extract.ParseRelation(e.Relation)
		if !ok {
			continue
		}
		out = append(out, extract.Triple{Head: e.Head, Relation: rel, Tail: e.Tail})
	}
	return out
}
