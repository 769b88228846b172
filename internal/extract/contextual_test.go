package extract

import (
	"context"
	"testing"
)

func TestContextual(t *testing.T) {
	dict := testDict()
	lyricist := fakeAnalyzer{rel: Lyricist, ok: true, head: "青花瓷"}
	composer := fakeAnalyzer{rel: Composer, ok: true, head: "青花瓷"}

	tests := []struct {
		name     string
		analyzer QuestionAnalyzer
		answer   string
		mode     Mode
		want     []Triple
	}{
		{
			name:     "bare name",
			analyzer: lyricist,
			answer:   "方文山",
			want:     []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "方文山"}},
		},
		{
			name:     "bare name with emphasis and period",
			analyzer: lyricist,
			answer:   "**方文山**。",
			want:     []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "方文山"}},
		},
		{
			name:     "head template",
			analyzer: lyricist,
			answer:   "《青花瓷》的作词人是方文山。他还写了很多歌。",
			want:     []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "方文山"}},
		},
		{
			name:     "variant template with bracket note",
			analyzer: composer,
			answer:   "作曲是周杰伦（台湾歌手）",
			want:     []Triple{{Head: "青花瓷", Relation: Composer, Tail: "周杰伦"}},
		},
		{
			name:     "answer label template",
			analyzer: lyricist,
			answer:   "答案：方文山",
			want:     []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "方文山"}},
		},
		{
			name:     "disclaimer",
			analyzer: lyricist,
			answer:   "我不知道",
		},
		{
			name:     "unknown person grounded",
			analyzer: lyricist,
			answer:   "林夕",
		},
		{
			name:     "unknown person ungrounded",
			analyzer: lyricist,
			answer:   "林夕",
			mode:     Ungrounded,
			want:     []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "林夕"}},
		},
		{
			name:     "ungrounded sentence answer",
			analyzer: fakeAnalyzer{rel: Performer, ok: true, head: "江南"},
			answer:   "江南的演唱者是林俊杰。",
			mode:     Ungrounded,
			want:     []Triple{{Head: "江南", Relation: Performer, Tail: "林俊杰"}},
		},
		{
			name:     "no relation in question",
			analyzer: fakeAnalyzer{head: "青花瓷"},
			answer:   "方文山",
		},
		{
			name:     "head is not a work",
			analyzer: fakeAnalyzer{rel: Lyricist, ok: true, head: "我很忙"},
			answer:   "方文山",
		},
		{
			name:     "empty head",
			analyzer: fakeAnalyzer{rel: Lyricist, ok: true},
			answer:   "方文山",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := NewContextual(dict, tt.analyzer)
			got := stage.Attempt(context.Background(), Request{
				Answer:   tt.answer,
				Question: "青花瓷的作词人是谁？",
				Mode:     tt.mode,
			})
			if len(got) > 1 {
				t.Fatalf("contextual stage returned %d triples", len(got))
			}
			sameTriples(t, got, tt.want)
		})
	}
}

func TestContextual_NoAnalyzer(t *testing.T) {
	stage := NewContextual(testDict(), nil)
	if stage.Available() {
		t.Error("stage without analyzer should be unavailable")
	}
	if got := stage.Attempt(context.Background(), Request{Answer: "方文山", Question: "青花瓷的作词人是谁？"}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestTemplatesOrder(t *testing.T) {
	res := templates("青花瓷", Performer)
	variants := Variants(Performer)
	if len(res) != 2*len(variants)+1 {
		t.Fatalf("got %d templates", len(res))
	}
	if res[len(res)-1] != answerTemplateRE {
		t.Error("answer label template must be last")
	}
	// Every head template precedes every bare variant template.
	for i := 0; i < len(variants); i++ {
		if !res[i].MatchString("《青花瓷》的" + variants[i] + "是周杰伦") {
			t.Errorf("template %d should be the head template for %q", i, variants[i])
		}
		if res[i].MatchString(variants[i] + "是周杰伦") {
			t.Errorf("template %d should require the head", i)
		}
	}
}

func TestTemplatesCompiledOnce(t *testing.T) {
	first := templates("青花瓷", Lyricist)
	second := templates("青花瓷", Lyricist)
	if len(first) != len(second) {
		t.Fatalf("template count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("template %d recompiled on second call", i)
		}
	}

	// Bare variant templates do not depend on the head and are shared.
	n := len(Variants(Lyricist))
	other := templates("七里香", Lyricist)
	for i := n; i < 2*n; i++ {
		if other[i] != first[i] {
			t.Errorf("variant template %d not shared across heads", i)
		}
	}
	if other[0] == first[0] {
		t.Error("head templates must differ per head")
	}
	if !other[0].MatchString("《七里香》的" + Variants(Lyricist)[0] + "是方文山") {
		t.Error("head template should match its own head")
	}
}

func TestContextualRepeatedCallsAgree(t *testing.T) {
	stage := NewContextual(testDict(), fakeAnalyzer{rel: Lyricist, ok: true, head: "青花瓷"})
	req := Request{Answer: "据我所知，作词人是方文山。", Question: "青花瓷的作词人是谁？"}
	want := []Triple{{Head: "青花瓷", Relation: Lyricist, Tail: "方文山"}}
	for i := 0; i < 3; i++ {
		got := stage.Attempt(context.Background(), req)
		if len(got) != 1 || got[0] != want[0] {
			t.Fatalf("call %d: got %v, want %v", i, got, want)
		}
	}
}

func TestTrimTemplateTail(t *testing.T) {
	tests := map[string]string{
		"周杰伦（台湾歌手）": "周杰伦",
		"周杰伦(Jay)":   "周杰伦",
		"方文山】":       "方文山",
		"方文山.":       "方文山",
		"黄俊郎【注】":     "黄俊郎",
	}
	for in, want := range tests {
		if got := trimTemplateTail(in); got != want {
			t.Errorf("trimTemplateTail(%q) = %q, want %q", in, got, want)
		}
	}
}
