// Package question recovers the relation and subject a music question asks
// about. It backs the contextual extraction stage and ungrounded head
// substitution.
package question

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
)

// relationKeywords are checked in order; the first relation with a keyword
// present in the question wins. Lyricist comes first so "谁写的词" is not
// read as a performer question.
var relationKeywords = []struct {
	rel      extract.Relation
	keywords []string
}{
	{extract.Lyricist, []string{"作词", "填词", "词作者", "写的词", "歌词"}},
	{extract.Composer, []string{"作曲", "谱曲", "曲作者", "写的曲"}},
	{extract.Performer, []string{"唱", "歌手", "演唱"}},
}

var (
	titleRE = regexp.MustCompile(`《([^》]+)》`)

	// headMarkers end the subject in questions like "七里香是谁唱的".
	headMarkers = []string{"的", "是谁", "由谁", "谁"}

	headPunct = " \t\r\n,，。.!！？?;；:：\"'“”‘’（）()[]【】《》"
)

// Analyzer implements extract.QuestionAnalyzer over a dictionary.
type Analyzer struct {
	dict *kb.Dictionary
}

// NewAnalyzer returns an analyzer. dict may be nil, in which case head
// extraction relies on titles and question shape only.
func NewAnalyzer(dict *kb.Dictionary) *Analyzer {
	return &Analyzer{dict: dict}
}

// ClassifyRelation returns the relation the question asks about.
func (a *Analyzer) ClassifyRelation(q string) (extract.Relation, bool) {
	for _, rk := range relationKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(q, kw) {
				return rk.rel, true
			}
		}
	}
	return "", false
}

// ExtractHead returns the subject of the question: a 《title》 if present,
// otherwise the longest known Work mentioned, otherwise the text before the
// first question marker.
func (a *Analyzer) ExtractHead(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}

	if m := titleRE.FindStringSubmatch(q); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}

	if works := a.dict.Recognize(q).Works(); len(works) > 0 {
		best := works[0]
		for _, w := range works[1:] {
			if utf8.RuneCountInString(w) > utf8.RuneCountInString(best) {
				best = w
			}
		}
		return best
	}

	cut := -1
	for _, m := range headMarkers {
		if i := strings.Index(q, m); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut <= 0 {
		return ""
	}
	return strings.Trim(q[:cut], headPunct)
}

var _ extract.QuestionAnalyzer = (*Analyzer)(nil)
