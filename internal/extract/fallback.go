package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/hallucheck/internal/kb"
)

// cjkRunRE finds runs of CJK ideographs that could be a name.
var cjkRunRE = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,6}`)

// compiledTrigger is a trigger keyword ready for matching.
type compiledTrigger struct {
	re *regexp.Regexp
}

var compiledTriggers = compileTriggers()

func compileTriggers() map[Relation][]compiledTrigger {
	out := make(map[Relation][]compiledTrigger, len(relationTriggers))
	for rel, ts := range relationTriggers {
		for _, t := range ts {
			expr := t.text
			if !t.pattern {
				expr = regexp.QuoteMeta(expr)
			}
			out[rel] = append(out[rel], compiledTrigger{re: regexp.MustCompile(`(?i)` + expr)})
		}
	}
	return out
}

// Fallback is the last extraction stage: recognized songs are paired with
// people in the text whenever a relation keyword appears.
//
// The pairing is a heuristic. Any relation keyword anywhere in the text
// pairs the song with the candidate nearest to that keyword, so an unrelated
// person can be attached to a song when they share a sentence.
type Fallback struct {
	dict *kb.Dictionary
}

// NewFallback builds the keyword fallback stage.
func NewFallback(dict *kb.Dictionary) *Fallback {
	return &Fallback{dict: dict}
}

func (f *Fallback) Name() string { return StageFallback }

// Attempt may return one triple per (work, relation) pair.
func (f *Fallback) Attempt(_ context.Context, req Request) []Triple {
	works := f.dict.Recognize(req.Answer).Works()
	if len(works) == 0 {
		return nil
	}

	candidates := f.personsInText(req.Answer)
	if len(candidates) == 0 {
		if req.Mode == Grounded {
			return nil
		}
		candidates = f.ungroundedCandidates(req.Answer)
		if len(candidates) == 0 {
			return nil
		}
	}

	text := NormalizeEntity(req.Answer)
	var triples []Triple
	for _, work := range works {
		for _, rel := range Relations() {
			hit, ok := firstTriggerHit(text, rel)
			if !ok {
				continue
			}
			if tail, ok := nearestCandidate(text, hit, candidates, work); ok {
				triples = append(triples, Triple{Head: work, Relation: rel, Tail: tail})
			}
		}
	}
	return triples
}

// personsInText returns the known Persons occurring literally in text,
// longest first.
func (f *Fallback) personsInText(text string) []string {
	var out []string
	for _, p := range f.dict.Persons() {
		if strings.Contains(text, p) {
			out = append(out, p)
		}
	}
	return out
}

// ungroundedCandidates scans short CJK runs for plausible names, in
// first-seen order.
func (f *Fallback) ungroundedCandidates(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, run := range cjkRunRE.FindAllString(text, -1) {
		c := CleanTail(run)
		if f.dict.IsHead(c) {
			continue
		}
		if !ValidateTail(c, f.dict, Ungrounded) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// firstTriggerHit returns the rune span of the first trigger of rel that
// matches text. Triggers are tried in their fixed order.
func firstTriggerHit(text string, rel Relation) (kb.Span, bool) {
	for _, t := range compiledTriggers[rel] {
		if loc := t.re.FindStringIndex(text); loc != nil {
			return runeSpan(text, loc[0], loc[1]), true
		}
	}
	return kb.Span{}, false
}

// nearestCandidate picks the candidate closest to the trigger hit, skipping
// the work itself. Ties keep candidate order.
func nearestCandidate(text string, hit kb.Span, candidates []string, work string) (string, bool) {
	type ranked struct {
		name string
		gap  int
	}
	var pool []ranked
	for _, c := range candidates {
		if c == work {
			continue
		}
		pool = append(pool, ranked{name: c, gap: gapTo(text, c, hit)})
	}
	if len(pool) == 0 {
		return "", false
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].gap < pool[j].gap })
	return pool[0].name, true
}

// gapTo returns the smallest rune distance between any occurrence of name
// in text and the span hit. Overlapping or adjacent spans have gap 0.
func gapTo(text, name string, hit kb.Span) int {
	best := utf8.RuneCountInString(text) + 1
	if name == "" {
		return best
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], name)
		if i < 0 {
			break
		}
		start := from + i
		sp := runeSpan(text, start, start+len(name))
		gap := 0
		switch {
		case sp.End <= hit.Start:
			gap = hit.Start - sp.End
		case sp.Start >= hit.End:
			gap = sp.Start - hit.End
		}
		if gap < best {
			best = gap
		}
		from = start + len(name)
	}
	return best
}

// runeSpan converts byte offsets in text to rune offsets.
func runeSpan(text string, start, end int) kb.Span {
	s := utf8.RuneCountInString(text[:start])
	return kb.Span{Start: s, End: s + utf8.RuneCountInString(text[start:end])}
}
