package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ollamaWaitDelay bounds how long a cancelled run waits for its output pipes
// to close. A model runner child can keep them open after ollama is killed.
const ollamaWaitDelay = 2 * time.Second

// ollamaProvider implements Provider by shelling out to `ollama run`.
// The process is bound to ctx, so the caller's deadline kills it.
type ollamaProvider struct {
	binary    string
	model     string
	waitDelay time.Duration
}

func (o *ollamaProvider) Name() string {
	return "ollama/" + o.model
}

func (o *ollamaProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	if opts.System != "" {
		prompt = opts.System + "\n\n" + prompt
	}

	args := []string{"run"}
	if strings.ToLower(opts.Format) == "json" {
		args = append(args, "--format", "json")
	}
	args = append(args, o.model, prompt)

	cmd := exec.CommandContext(ctx, o.binary, args...)
	cmd.WaitDelay = o.waitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = ollamaWaitDelay
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("running %s: %w", o.binary, err)
		}
		return "", fmt.Errorf("running %s: %w: %s", o.binary, err, msg)
	}

	return CleanOutput(stdout.String(), opts.FirstLine), nil
}

var (
	thinkingPrefixRE = regexp.MustCompile(`(?m)^Thinking\.\.\.\s*`)
	doneThinkingRE   = regexp.MustCompile(`(?m)\.{3}done thinking.*$`)
)

// CleanOutput strips reasoning-model progress noise ("Thinking...",
// "...done thinking") from raw CLI output. With firstLine set only the first
// line of what remains is returned.
func CleanOutput(raw string, firstLine bool) string {
	out := strings.TrimSpace(raw)
	out = thinkingPrefixRE.ReplaceAllString(out, "")
	out = doneThinkingRE.ReplaceAllString(out, "")
	if firstLine {
		out = strings.TrimSpace(out)
		if idx := strings.IndexByte(out, '\n'); idx >= 0 {
			out = out[:idx]
		}
	}
	return strings.TrimSpace(out)
}
