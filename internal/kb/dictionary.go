// Package kb provides the closed-vocabulary entity dictionary for hallucheck.
//
// The dictionary holds every entity name registered in the music knowledge
// base, partitioned into three categories:
// - Works (songs)
// - Collections (albums)
// - Persons (performers, lyricists, composers)
//
// Recognition is dictionary based: only names that already exist in the
// knowledge base are ever reported, which keeps extraction from inventing
// entities the verifier cannot check.
package kb

import (
	"sort"
	"strings"
	"unicode"
)

// Category identifies one of the three entity partitions.
type Category string

const (
	Work       Category = "work"
	Collection Category = "collection"
	Person     Category = "person"
)

// Categories returns the categories in recognition priority order.
// An earlier category wins a contested span.
func Categories() []Category {
	return []Category{Work, Collection, Person}
}

// Span is a half-open [Start, End) interval of rune offsets in a text.
type Span struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open spans share at least one offset.
func (s Span) Overlaps(o Span) bool {
	return !(s.End <= o.Start || s.Start >= o.End)
}

// Entities maps each category to the deduplicated names recognized in a text.
type Entities map[Category][]string

// Works returns recognized Work names.
func (e Entities) Works() []string { return e[Work] }

// Collections returns recognized Collection names.
func (e Entities) Collections() []string { return e[Collection] }

// Persons returns recognized Person names.
func (e Entities) Persons() []string { return e[Person] }

// Total returns the number of recognized names across all categories.
func (e Entities) Total() int {
	n := 0
	for _, names := range e {
		n += len(names)
	}
	return n
}

type entry struct {
	name   string
	folded []rune
}

// Dictionary is an immutable set of known entity names.
// It is safe for concurrent readers once constructed.
type Dictionary struct {
	sets   map[Category]map[string]struct{}
	sorted map[Category][]entry
}

// New builds a Dictionary from the three name lists. Blank names are dropped;
// all other names are kept exactly as given.
func New(works, collections, persons []string) *Dictionary {
	d := &Dictionary{
		sets:   make(map[Category]map[string]struct{}, 3),
		sorted: make(map[Category][]entry, 3),
	}
	for cat, names := range map[Category][]string{
		Work:       works,
		Collection: collections,
		Person:     persons,
	} {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			set[name] = struct{}{}
		}
		d.sets[cat] = set
		d.sorted[cat] = sortedEntries(set)
	}
	return d
}

// Empty returns a dictionary with no entities. Recognition on it always
// yields an empty result.
func Empty() *Dictionary {
	return New(nil, nil, nil)
}

// sortedEntries orders names longest first so a short name never pre-empts a
// longer name that contains it. Equal lengths fall back to lexical order.
func sortedEntries(set map[string]struct{}) []entry {
	out := make([]entry, 0, len(set))
	for name := range set {
		out = append(out, entry{name: name, folded: fold(name)})
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := len(out[i].folded), len(out[j].folded)
		if li != lj {
			return li > lj
		}
		return out[i].name < out[j].name
	})
	return out
}

// fold lowercases rune by rune so offsets in the folded text line up with
// offsets in the original.
func fold(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

// Recognize finds known entities in text using longest-match, non-overlapping
// spans. Categories are processed Work, Collection, Person; within a category
// longer names are tried first. Each accepted name is reported once.
func (d *Dictionary) Recognize(text string) Entities {
	out := Entities{}
	if d == nil || text == "" {
		return out
	}

	folded := fold(text)
	var accepted []Span

	for _, cat := range Categories() {
		var found []string
		for _, e := range d.sorted[cat] {
			for _, sp := range findAll(folded, e.folded) {
				if overlapsAny(sp, accepted) {
					continue
				}
				accepted = append(accepted, sp)
				found = append(found, e.name)
				break
			}
		}
		if len(found) > 0 {
			out[cat] = found
		}
	}
	return out
}

// AllEntities returns every recognized name regardless of category.
func (d *Dictionary) AllEntities(text string) []string {
	entities := d.Recognize(text)
	seen := make(map[string]bool)
	var out []string
	for _, cat := range Categories() {
		for _, name := range entities[cat] {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// findAll returns successive non-overlapping occurrences of pattern in text.
func findAll(text, pattern []rune) []Span {
	if len(pattern) == 0 || len(pattern) > len(text) {
		return nil
	}
	var spans []Span
	for i := 0; i+len(pattern) <= len(text); {
		if runesEqual(text[i:i+len(pattern)], pattern) {
			spans = append(spans, Span{Start: i, End: i + len(pattern)})
			i += len(pattern)
			continue
		}
		i++
	}
	return spans
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func overlapsAny(sp Span, accepted []Span) bool {
	for _, a := range accepted {
		if sp.Overlaps(a) {
			return true
		}
	}
	return false
}

// Has reports exact membership of name in the given category.
func (d *Dictionary) Has(cat Category, name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.sets[cat][name]
	return ok
}

// IsWork reports whether name is a known Work.
func (d *Dictionary) IsWork(name string) bool { return d.Has(Work, name) }

// IsCollection reports whether name is a known Collection.
func (d *Dictionary) IsCollection(name string) bool { return d.Has(Collection, name) }

// IsPerson reports whether name is a known Person.
func (d *Dictionary) IsPerson(name string) bool { return d.Has(Person, name) }

// IsHead reports whether name may be the subject of a triple.
func (d *Dictionary) IsHead(name string) bool {
	return d.IsWork(name) || d.IsCollection(name)
}

// Persons returns the Person names, longest first.
func (d *Dictionary) Persons() []string {
	if d == nil {
		return nil
	}
	entries := d.sorted[Person]
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// Counts returns the number of names per category.
func (d *Dictionary) Counts() map[Category]int {
	out := make(map[Category]int, 3)
	for _, cat := range Categories() {
		if d == nil {
			out[cat] = 0
			continue
		}
		out[cat] = len(d.sets[cat])
	}
	return out
}

// Len returns the total number of names in the dictionary.
func (d *Dictionary) Len() int {
	n := 0
	for _, c := range d.Counts() {
		n += c
	}
	return n
}
