// Package mcp provides a Model Context Protocol server for hallucheck.
//
// It exposes claim extraction, answer checking and entity recognition as MCP
// tools, and dictionary statistics and the check log as MCP resources.
// Served over stdio (for Claude Desktop, Cursor and similar hosts).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/store"
	"github.com/hurttlocker/hallucheck/internal/verify"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Pipeline *extract.Pipeline
	Store    store.Store // optional, enables hallucheck_check and the check log
	Mode     extract.Mode
	Version  string // version string for MCP server info
	Logger   *slog.Logger
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and SQLite allows a single writer.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all hallucheck tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		"Hallucheck",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Pipeline, cfg.Mode)
	registerRecognizeTool(s, cfg.Pipeline)
	if cfg.Store != nil {
		registerCheckTool(s, cfg.Pipeline, cfg.Store, cfg.Mode, logger)
	}

	registerDictionaryStatsResource(s, cfg.Pipeline, cfg.Store)
	if cfg.Store != nil {
		registerRecentChecksResource(s, cfg.Store)
	}

	return s
}

// ServeStdio serves s on the given streams until ctx is cancelled or stdin
// closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	if logger != nil {
		stdio.SetErrorLogger(log.New(&slogWriter{logger: logger}, "", 0))
	}
	return stdio.Listen(ctx, stdin, stdout)
}

type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Error("mcp stdio", "error", strings.TrimSpace(string(p)))
	return len(p), nil
}

// --- Tools ---

type extractResult struct {
	Mode    string           `json:"mode"`
	Stage   string           `json:"stage,omitempty"`
	Triples []extract.Triple `json:"triples"`
}

func modeArg(req mcp.CallToolRequest, fallback extract.Mode) (extract.Mode, error) {
	raw, err := req.RequireString("mode")
	if err != nil || raw == "" {
		return fallback, nil
	}
	return extract.ParseMode(raw)
}

func optionalString(req mcp.CallToolRequest, key string) string {
	v, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return v
}

func registerExtractTool(s *server.MCPServer, pl *extract.Pipeline, defaultMode extract.Mode) {
	tool := mcp.NewTool("hallucheck_extract",
		mcp.WithDescription("Extract checkable music claims (work, relation, person) from a model answer. Relations are performer, lyricist and composer. An empty triple list means no checkable claim."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("The model answer to analyze"),
		),
		mcp.WithString("question",
			mcp.Description("The question the answer responds to (improves short answers)"),
		),
		mcp.WithString("mode",
			mcp.Description("grounded accepts only known people; ungrounded also accepts plausible unknown names"),
			mcp.Enum("grounded", "ungrounded"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcp.NewToolResultError("answer is required"), nil
		}
		mode, err := modeArg(req, defaultMode)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res := pl.ExtractDetailed(ctx, answer, optionalString(req, "question"), mode)
		out := extractResult{Mode: mode.String(), Stage: res.Stage, Triples: res.Triples}
		if out.Triples == nil {
			out.Triples = []extract.Triple{}
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRecognizeTool(s *server.MCPServer, pl *extract.Pipeline) {
	tool := mcp.NewTool("hallucheck_recognize",
		mcp.WithDescription("Find known works, collections and people in a text using the knowledge-base dictionary."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to scan"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		ents := pl.Dictionary().Recognize(text)
		payload := map[string][]string{}
		for cat, names := range ents {
			payload[string(cat)] = names
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCheckTool(s *server.MCPServer, pl *extract.Pipeline, st store.Store, defaultMode extract.Mode, logger *slog.Logger) {
	tool := mcp.NewTool("hallucheck_check",
		mcp.WithDescription("Extract claims from a model answer and verify each one against the knowledge base. Verdict is supported, hallucination or insufficient_evidence. Every check is logged."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("The model answer to check"),
		),
		mcp.WithString("question",
			mcp.Description("The question the answer responds to"),
		),
		mcp.WithString("mode",
			mcp.Description("grounded (default) or ungrounded"),
			mcp.Enum("grounded", "ungrounded"),
		),
	)

	checker := verify.NewChecker(pl, st)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcp.NewToolResultError("answer is required"), nil
		}
		mode, err := modeArg(req, defaultMode)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		question := optionalString(req, "question")

		dbMu.Lock()
		defer dbMu.Unlock()

		report, err := checker.Check(ctx, answer, question, mode)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("check error: %v", err)), nil
		}

		if _, err := st.RecordCheck(ctx, &store.CheckRecord{
			Question:    question,
			Answer:      answer,
			Mode:        mode.String(),
			Stage:       report.Stage,
			Triples:     report.Triples,
			Supported:   len(report.Supported),
			Unsupported: len(report.Unsupported),
			Verdict:     string(report.Verdict),
		}); err != nil {
			logger.Warn("recording check failed", "error", err)
		}

		data, _ := json.MarshalIndent(report, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}
