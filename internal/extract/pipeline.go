package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/llm"
)

// Stage names, also used as metric labels.
const (
	StageModel      = "model"
	StageContextual = "contextual"
	StageFallback   = "fallback"
)

// Request is the input every stage sees.
type Request struct {
	Answer   string
	Question string
	Mode     Mode
	// Head is the externally supplied subject used by the model stage in
	// ungrounded mode when the model omits one.
	Head string
}

// Strategy is one extraction stage. Attempt never fails: an empty result
// means the next stage should run.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) []Triple
}

// availability is implemented by stages that depend on an optional
// collaborator. Unavailable stages are skipped without being attempted.
type availability interface {
	Available() bool
}

// Available reports whether a generator is configured.
func (m *ModelAssisted) Available() bool { return m.provider != nil }

// Available reports whether a question analyzer is configured.
func (c *Contextual) Available() bool { return c.analyzer != nil }

// Result is the outcome of one extraction call.
type Result struct {
	Triples []Triple `json:"triples"`
	// Stage names the stage that produced Triples, or "" when none did.
	Stage string `json:"stage,omitempty"`
}

// unknownSentinels are answers that carry no claim at all.
var unknownSentinels = map[string]bool{
	"未知":      true,
	"unknown": true,
	"":        true,
}

// Pipeline runs its strategies in order and returns the first non-empty
// result. It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	dict       *kb.Dictionary
	provider   llm.Provider
	timeout    time.Duration
	analyzer   QuestionAnalyzer
	strategies []Strategy
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGenerator enables the model-assisted stage. timeout bounds each
// generation call; zero means llm.DefaultTimeout.
func WithGenerator(p llm.Provider, timeout time.Duration) Option {
	return func(pl *Pipeline) {
		pl.provider = p
		pl.timeout = timeout
	}
}

// WithQuestionAnalyzer enables the contextual stage and ungrounded head
// substitution.
func WithQuestionAnalyzer(q QuestionAnalyzer) Option {
	return func(pl *Pipeline) {
		pl.analyzer = q
	}
}

// WithStrategies replaces the default stage order.
func WithStrategies(s ...Strategy) Option {
	return func(pl *Pipeline) {
		pl.strategies = s
	}
}

// WithLogger sets the logger used by the pipeline and its default stages.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithMetrics records stage outcomes and latency.
func WithMetrics(m *Metrics) Option {
	return func(pl *Pipeline) {
		pl.metrics = m
	}
}

// NewPipeline assembles the default model-assisted, contextual, fallback
// pipeline over dict.
func NewPipeline(dict *kb.Dictionary, opts ...Option) *Pipeline {
	pl := &Pipeline{
		dict:   dict,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	if pl.strategies == nil {
		pl.strategies = DefaultStrategies(dict, pl.provider, pl.timeout, pl.analyzer, pl.logger)
	}
	return pl
}

// DefaultStrategies returns the standard stage order.
func DefaultStrategies(dict *kb.Dictionary, p llm.Provider, timeout time.Duration, q QuestionAnalyzer, logger *slog.Logger) []Strategy {
	return []Strategy{
		NewModelAssisted(dict, p, timeout, logger),
		NewContextual(dict, q),
		NewFallback(dict),
	}
}

// Stages returns the names of the configured stages in order.
func (pl *Pipeline) Stages() []string {
	names := make([]string, len(pl.strategies))
	for i, s := range pl.strategies {
		names[i] = s.Name()
	}
	return names
}

// Dictionary returns the dictionary the pipeline was built over.
func (pl *Pipeline) Dictionary() *kb.Dictionary { return pl.dict }

// Extract returns the triples claimed by answer. An empty result means no
// checkable claim was found.
func (pl *Pipeline) Extract(ctx context.Context, answer, question string, mode Mode) []Triple {
	return pl.ExtractDetailed(ctx, answer, question, mode).Triples
}

// IsUnknownAnswer reports whether answer is blank or an unknown sentinel,
// ignoring case and whitespace.
func IsUnknownAnswer(answer string) bool {
	return unknownSentinels[strings.ToLower(strings.Join(strings.Fields(answer), ""))]
}

// ExtractDetailed is Extract plus the name of the stage that answered.
func (pl *Pipeline) ExtractDetailed(ctx context.Context, answer, question string, mode Mode) Result {
	if IsUnknownAnswer(answer) {
		pl.metrics.observeGuard()
		return Result{}
	}

	req := Request{Answer: answer, Question: question, Mode: mode}
	if mode == Ungrounded && question != "" && pl.analyzer != nil {
		req.Head = pl.analyzer.ExtractHead(question)
	}

	for _, s := range pl.strategies {
		if a, ok := s.(availability); ok && !a.Available() {
			pl.metrics.observeStage(s.Name(), OutcomeSkipped, 0)
			continue
		}

		start := time.Now()
		triples := s.Attempt(ctx, req)
		elapsed := time.Since(start)

		if len(triples) == 0 {
			pl.metrics.observeStage(s.Name(), OutcomeMiss, elapsed)
			continue
		}
		pl.metrics.observeStage(s.Name(), OutcomeHit, elapsed)
		pl.logger.Debug("extraction stage hit", "stage", s.Name(), "triples", len(triples), "mode", mode.String())
		return Result{Triples: triples, Stage: s.Name()}
	}

	pl.logger.Debug("no triples extracted", "mode", mode.String())
	return Result{}
}
