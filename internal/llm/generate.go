package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GenerationKind classifies the outcome of a bounded generation call.
type GenerationKind int

const (
	GenerationOK GenerationKind = iota
	GenerationTimeout
	GenerationFailed
)

func (k GenerationKind) String() string {
	switch k {
	case GenerationOK:
		return "ok"
	case GenerationTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// Generation is the result of Generate: either text, or the kind of failure.
type Generation struct {
	Text string
	Kind GenerationKind
	Err  error
}

// OK reports whether generation produced text.
func (g Generation) OK() bool { return g.Kind == GenerationOK }

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// Generate calls p under a hard deadline. It never returns an error: a
// timeout or provider failure is reported through the Kind field so callers
// can move on without unwinding.
func Generate(ctx context.Context, p Provider, prompt string, timeout time.Duration, opts CompletionOpts) Generation {
	if p == nil {
		return Generation{Kind: GenerationFailed, Err: errors.New("no generator configured")}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := p.Complete(ctx, prompt, opts)
	switch {
	case err == nil:
		return Generation{Text: text, Kind: GenerationOK}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Generation{Kind: GenerationTimeout, Err: fmt.Errorf("%s: generation timed out after %s: %w", p.Name(), timeout, err)}
	default:
		return Generation{Kind: GenerationFailed, Err: fmt.Errorf("%s: %w", p.Name(), err)}
	}
}
