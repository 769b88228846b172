// Package main provides the hallucheck binary entry point.
// Hallucheck extracts music claims from model answers and checks them
// against a local knowledge base.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "hallucheck"
)

// BuildTime is set with -ldflags at release time.
var BuildTime = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Catch hallucinated music claims in model answers",
		Long: `Hallucheck turns free-text model answers into (work, relation, person)
triples and checks them against a local music knowledge base.

Extraction runs three stages and the first one that finds a claim wins:
  - model-assisted: ask the generator for a JSON triple list
  - contextual: use the question to read short answers
  - fallback: pair recognized songs and people around relation keywords`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "Config file path (default ~/.hallucheck/config.yaml)")
	f.StringVar(&g.dbPath, "db", "", "Knowledge-base database path")
	f.StringVar(&g.seedPath, "seed", "", "Seed file imported at startup")
	f.StringVar(&g.llm, "llm", "", `Generator as provider/model (e.g. ollama/qwen2.5:1.5b), or "none"`)
	f.StringVar(&g.baseURL, "llm-base-url", "", "Base URL for OpenAI-compatible generators")
	f.StringVar(&g.timeout, "llm-timeout", "", "Per-call generation timeout in seconds")
	f.StringVar(&g.mode, "mode", "", "Tail acceptance: grounded or ungrounded")
	f.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.BoolVar(&g.jsonOut, "json", false, "Output as JSON")

	cmd.AddCommand(
		extractCmd(g),
		checkCmd(g),
		askCmd(g),
		recognizeCmd(g),
		seedCmd(g),
		statsCmd(g),
		checksCmd(g),
		evalCmd(g),
		serveCmd(g),
		configCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}
