package extract

import "strings"

// Relation is the closed set of fact kinds the knowledge base can verify.
type Relation string

const (
	Performer Relation = "performer"
	Lyricist  Relation = "lyricist"
	Composer  Relation = "composer"
)

// Relations returns every relation in fixed scan order.
func Relations() []Relation {
	return []Relation{Performer, Lyricist, Composer}
}

// relationLabels are the knowledge-base edge labels. The model prompt asks
// for these, so model output is parsed back through them.
var relationLabels = map[Relation]string{
	Performer: "歌手",
	Lyricist:  "作词",
	Composer:  "作曲",
}

// Label returns the knowledge-base label for r.
func (r Relation) Label() string {
	return relationLabels[r]
}

// Valid reports whether r is one of the closed relation kinds.
func (r Relation) Valid() bool {
	_, ok := relationLabels[r]
	return ok
}

func (r Relation) String() string { return string(r) }

// ParseRelation maps an English name or a knowledge-base label onto the
// closed set. Anything else is rejected.
func ParseRelation(s string) (Relation, bool) {
	s = strings.TrimSpace(s)
	for _, r := range Relations() {
		if s == string(r) || s == r.Label() {
			return r, true
		}
	}
	return "", false
}

// relationVariants are the surface forms used when isolating an object from
// a short answer. Longer forms come first so "作词人是X" never leaves "人是X".
var relationVariants = map[Relation][]string{
	Performer: {"演唱者", "主唱", "演唱", "歌手"},
	Lyricist:  {"作词人", "词作者", "填词人", "填词", "作词"},
	Composer:  {"作曲人", "曲作者", "谱曲人", "谱曲", "作曲"},
}

// Variants returns the keyword variants of r.
func Variants(r Relation) []string {
	return relationVariants[r]
}

// trigger is one relation keyword used by the keyword fallback. Most are
// literal; a few are patterns.
type trigger struct {
	text    string
	pattern bool
}

var relationTriggers = map[Relation][]trigger{
	Performer: {
		{text: "演唱"}, {text: "唱"}, {text: "主唱"},
		{text: "由.*?演唱", pattern: true},
		{text: "演唱者"}, {text: "谁唱"},
	},
	Lyricist: {
		{text: "作词"}, {text: "填词"}, {text: "词作者"},
		{text: "歌词由"}, {text: "作词人"}, {text: "谁写的词"},
	},
	Composer: {
		{text: "作曲"}, {text: "谱曲"}, {text: "曲作者"},
		{text: "作曲人"}, {text: "谁作曲"},
	},
}

// Triggers returns the raw trigger keywords for r in scan order.
func Triggers(r Relation) []string {
	ts := relationTriggers[r]
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.text
	}
	return out
}
