package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/hallucheck/internal/kb"
)

var (
	asciiAlnumRE = regexp.MustCompile(`[A-Za-z0-9]+`)

	// tailSeparators are connectives that precede the object in a sentence
	// ("作词是X", "由X演唱"). Only the text after the last one is kept.
	tailSeparators = []string{"是", "为", "由"}

	// roleSuffixes trail a performer name ("周杰伦演唱").
	roleSuffixes = []string{"演唱者", "演唱", "主唱", "歌手"}

	// tailDenylist marks uncertainty or generic nouns that are never a name.
	tailDenylist = []string{
		"不知道", "不确定", "可能", "需要", "答案", "用户",
		"歌曲", "专辑", "演唱",
		"韩国", "中国", "日本", "美国",
		"男子", "女子", "组合", "成员",
	}
)

const (
	minTailRunes = 2
	maxTailRunes = 20
)

// NormalizeEntity removes title brackets and surrounding whitespace.
func NormalizeEntity(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "《", "")
	s = strings.ReplaceAll(s, "》", "")
	return strings.TrimSpace(s)
}

// CleanTail isolates a candidate object from the sentence fragment around it.
// For example "由方文山" becomes "方文山" and "《七里香》的歌手是周杰伦演唱"
// becomes "周杰伦".
func CleanTail(tail string) string {
	if tail == "" {
		return ""
	}
	cleaned := NormalizeEntity(tail)
	cleaned = asciiAlnumRE.ReplaceAllString(cleaned, "")
	for _, sep := range tailSeparators {
		if idx := strings.LastIndex(cleaned, sep); idx >= 0 {
			cleaned = cleaned[idx+len(sep):]
		}
	}
	if idx := strings.LastIndex(cleaned, "成员"); idx >= 0 {
		cleaned = cleaned[idx+len("成员"):]
	}
	cleaned = strings.TrimLeft(cleaned, "的")
	for _, suffix := range roleSuffixes {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	return strings.TrimSpace(cleaned)
}

// ValidateTail decides whether tail is an acceptable fact object.
//
// Grounded mode accepts exactly the known Persons. Ungrounded mode also
// accepts names that look well formed: 2–20 characters, no ASCII letters or
// digits, and none of the denylisted uncertainty or generic words. Callers
// must exclude candidates equal to a known Work or Collection themselves.
func ValidateTail(tail string, dict *kb.Dictionary, mode Mode) bool {
	if tail == "" {
		return false
	}
	if dict.IsPerson(tail) {
		return true
	}
	if mode == Grounded {
		return false
	}
	n := utf8.RuneCountInString(tail)
	if n < minTailRunes || n > maxTailRunes {
		return false
	}
	if asciiAlnumRE.MatchString(tail) {
		return false
	}
	for _, bad := range tailDenylist {
		if strings.Contains(tail, bad) {
			return false
		}
	}
	return true
}
