package llm

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// UnknownAnswer is what the answering path returns when the model produced
// nothing usable. The extraction pipeline treats it as "no claim".
const UnknownAnswer = "未知"

var (
	answerLabelRE = regexp.MustCompile(`(?i)^(答案|回答|Answer)[:：]\s*`)
	emphasisRE    = regexp.MustCompile(`\*+`)
)

// AnswerPrompt wraps a question in the plain question/answer prompt used for
// first-stage answering.
func AnswerPrompt(question string) string {
	q := strings.TrimSpace(question)
	if !strings.HasSuffix(q, "?") && !strings.HasSuffix(q, "？") &&
		!strings.HasSuffix(q, ".") && !strings.HasSuffix(q, "。") &&
		!strings.HasSuffix(q, "!") && !strings.HasSuffix(q, "！") {
		q += "？"
	}
	return "问题：" + q + "\n回答："
}

// CleanAnswer turns raw model output into a single answer line: progress
// lines are dropped, remaining lines are joined, a leading answer label and
// markdown emphasis are removed. Empty output becomes UnknownAnswer.
func CleanAnswer(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Thinking...") || strings.Contains(line, "...done thinking") {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return UnknownAnswer
	}

	full := strings.Join(kept, " ")
	full = answerLabelRE.ReplaceAllString(full, "")
	full = emphasisRE.ReplaceAllString(full, "")
	if strings.TrimSpace(full) == "" {
		return UnknownAnswer
	}
	return full
}

// Answer asks p the question and returns a cleaned answer. Any failure yields
// UnknownAnswer rather than an error.
func Answer(ctx context.Context, p Provider, question string, timeout time.Duration) (string, Generation) {
	gen := Generate(ctx, p, AnswerPrompt(question), timeout, CompletionOpts{})
	if !gen.OK() {
		return UnknownAnswer, gen
	}
	return CleanAnswer(gen.Text), gen
}
