package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hurttlocker/hallucheck/internal/config"
	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/llm"
	"github.com/hurttlocker/hallucheck/internal/question"
	"github.com/hurttlocker/hallucheck/internal/store"
)

type globalFlags struct {
	configPath string
	dbPath     string
	seedPath   string
	llm        string
	baseURL    string
	timeout    string
	mode       string
	logLevel   string
	jsonOut    bool
}

func (g *globalFlags) resolve() (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: g.configPath,
		CLIDBPath:  g.dbPath,
		CLISeed:    g.seedPath,
		CLILLM:     g.llm,
		CLIBaseURL: g.baseURL,
		CLITimeout: g.timeout,
		CLIMode:    g.mode,
	})
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// app is everything a command needs, wired from resolved configuration.
type app struct {
	cfg      config.ResolvedConfig
	logger   *slog.Logger
	store    *store.SQLiteStore
	dict     *kb.Dictionary
	provider llm.Provider
	pipeline *extract.Pipeline
	mode     extract.Mode
	registry *prometheus.Registry
}

// newApp resolves configuration, opens the store, imports the configured
// seed, loads the dictionary and assembles the pipeline. Misconfiguration is
// an error; a knowledge base that cannot be read only degrades extraction.
func newApp(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*app, error) {
	logger := newLogger(cmd.ErrOrStderr(), g.logLevel)
	slog.SetDefault(logger)

	cfg, err := g.resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}
	mode, err := extract.ParseMode(cfg.Mode.Value)
	if err != nil {
		return nil, fmt.Errorf("mode from %s: %w", cfg.Mode.Source, err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	var provider llm.Provider
	if !cfg.GeneratorDisabled() {
		llmCfg, err := cfg.LLMConfig()
		if err != nil {
			return nil, err
		}
		if provider, err = llm.NewProvider(llmCfg); err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
	}

	st, err := store.Open(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if cfg.SeedPath.Value != "" {
		seed, err := kb.LoadSeedFile(cfg.SeedPath.Value)
		if err != nil {
			st.Close()
			return nil, err
		}
		res, err := st.ImportSeed(ctx, seed)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("importing seed %s: %w", cfg.SeedPath.Value, err)
		}
		logger.Info("seed imported", "path", cfg.SeedPath.Value,
			"entities", res.EntitiesAdded, "credits", res.CreditsAdded, "skipped", res.Skipped)
	}

	dict := kb.Load(ctx, st, logger)
	registry := prometheus.NewRegistry()

	opts := []extract.Option{
		extract.WithQuestionAnalyzer(question.NewAnalyzer(dict)),
		extract.WithLogger(logger),
		extract.WithMetrics(extract.NewMetrics(registry)),
	}
	if provider != nil {
		opts = append(opts, extract.WithGenerator(provider, timeout))
		logger.Debug("generator enabled", "provider", provider.Name(), "timeout", timeout)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		dict:     dict,
		provider: provider,
		pipeline: extract.NewPipeline(dict, opts...),
		mode:     mode,
		registry: registry,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp runs fn with a fully wired app and closes it afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// textArg joins positional args, falling back to stdin when there are none.
func textArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func formatTriple(t extract.Triple) string {
	return fmt.Sprintf("%s\t%s\t%s", t.Head, t.Relation, t.Tail)
}
