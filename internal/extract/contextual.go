package extract

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hurttlocker/hallucheck/internal/kb"
)

// QuestionAnalyzer recovers what a question is asking about.
type QuestionAnalyzer interface {
	// ClassifyRelation returns the relation the question asks for.
	ClassifyRelation(question string) (Relation, bool)
	// ExtractHead returns the subject named in the question, or "".
	ExtractHead(question string) string
}

const maxDirectAnswerRunes = 20

var (
	emphasisRE       = regexp.MustCompile(`\*+`)
	sentenceEndRE    = regexp.MustCompile(`[。！？\n]`)
	trailingPunctRE  = regexp.MustCompile(`[。！？，,.\s】）\)\]]+$`)
	tailCutRE        = regexp.MustCompile(`[（\(【\s]`)
	answerTemplateRE = regexp.MustCompile(`答案[：:]\s*([^\s。，；！？、,]+)`)

	// disclaimerWords mark an answer that hedges instead of naming someone.
	disclaimerWords = []string{"不知道", "不确定", "可能", "需要", "嗯", "好的", "用户"}
)

const tailGroup = `([^\s。，；！？、,]+)`

// Contextual is the second extraction stage. It handles short answers such
// as a lone name by taking the relation and subject from the question.
type Contextual struct {
	dict     *kb.Dictionary
	analyzer QuestionAnalyzer
}

// NewContextual builds the contextual stage. A nil analyzer makes the stage
// a no-op.
func NewContextual(dict *kb.Dictionary, analyzer QuestionAnalyzer) *Contextual {
	return &Contextual{dict: dict, analyzer: analyzer}
}

func (c *Contextual) Name() string { return StageContextual }

// Attempt returns at most one triple.
func (c *Contextual) Attempt(_ context.Context, req Request) []Triple {
	if c.analyzer == nil || req.Question == "" {
		return nil
	}

	rel, ok := c.analyzer.ClassifyRelation(req.Question)
	if !ok {
		return nil
	}
	head := c.analyzer.ExtractHead(req.Question)
	if head == "" || !c.dict.IsWork(head) {
		return nil
	}

	sentence := firstSentence(req.Answer)
	candidate := trailingPunctRE.ReplaceAllString(sentence, "")
	candidate = strings.TrimSpace(candidate)
	if req.Mode == Ungrounded {
		candidate = CleanTail(candidate)
	}

	if c.isDirectAnswer(candidate, head, rel) && ValidateTail(candidate, c.dict, req.Mode) {
		return []Triple{{Head: head, Relation: rel, Tail: candidate}}
	}

	for _, re := range templates(head, rel) {
		m := re.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		tail := trimTemplateTail(m[1])
		if req.Mode == Ungrounded {
			tail = CleanTail(tail)
		}
		if ValidateTail(tail, c.dict, req.Mode) {
			return []Triple{{Head: head, Relation: rel, Tail: tail}}
		}
	}
	return nil
}

// firstSentence strips emphasis markers and keeps the text before the first
// sentence terminator.
func firstSentence(answer string) string {
	s := strings.TrimSpace(answer)
	s = emphasisRE.ReplaceAllString(s, "")
	if loc := sentenceEndRE.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.TrimSpace(s)
}

func (c *Contextual) isDirectAnswer(candidate, head string, rel Relation) bool {
	if utf8.RuneCountInString(candidate) > maxDirectAnswerRunes {
		return false
	}
	for _, w := range disclaimerWords {
		if strings.Contains(candidate, w) {
			return false
		}
	}
	if strings.Contains(candidate, head) {
		return false
	}
	for _, v := range Variants(rel) {
		if strings.Contains(candidate, v) {
			return false
		}
	}
	return true
}

// variantTemplates holds the head-independent "<variant>是X" patterns per
// relation.
var variantTemplates = compileVariantTemplates()

func compileVariantTemplates() map[Relation][]*regexp.Regexp {
	out := make(map[Relation][]*regexp.Regexp, len(Relations()))
	for _, rel := range Relations() {
		for _, v := range Variants(rel) {
			out[rel] = append(out[rel], regexp.MustCompile(regexp.QuoteMeta(v)+`(?:是|为)?\s*`+tailGroup))
		}
	}
	return out
}

type templateKey struct {
	head string
	rel  Relation
}

// headTemplates caches compiled template lists by (head, relation). Heads
// are known works, so the cache is bounded by the dictionary.
var headTemplates sync.Map

// templates returns the object-isolating patterns for head and rel in
// priority order: "《head》的<variant>是X" for every variant, then
// "<variant>是X" for every variant, then "答案：X".
func templates(head string, rel Relation) []*regexp.Regexp {
	key := templateKey{head: head, rel: rel}
	if v, ok := headTemplates.Load(key); ok {
		return v.([]*regexp.Regexp)
	}

	variants := Variants(rel)
	out := make([]*regexp.Regexp, 0, 2*len(variants)+1)
	qh := regexp.QuoteMeta(head)
	for _, v := range variants {
		out = append(out, regexp.MustCompile(`《?`+qh+`》?\s*的\s*`+regexp.QuoteMeta(v)+`(?:是|为)?\s*`+tailGroup))
	}
	out = append(out, variantTemplates[rel]...)
	out = append(out, answerTemplateRE)

	v, _ := headTemplates.LoadOrStore(key, out)
	return v.([]*regexp.Regexp)
}

// trimTemplateTail cuts a matched tail at the first bracket or space and
// drops trailing punctuation.
func trimTemplateTail(tail string) string {
	tail = strings.TrimSpace(tail)
	if loc := tailCutRE.FindStringIndex(tail); loc != nil {
		tail = tail[:loc[0]]
	}
	tail = trailingPunctRE.ReplaceAllString(tail, "")
	return strings.TrimSpace(tail)
}
