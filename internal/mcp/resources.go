package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/hallucheck/internal/extract"
	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/store"
)

type storeCounts struct {
	Credits     int64 `json:"credits"`
	Checks      int64 `json:"checks"`
	DBSizeBytes int64 `json:"db_size_bytes"`
}

type dictionaryStats struct {
	Works       int          `json:"works"`
	Collections int          `json:"collections"`
	Persons     int          `json:"persons"`
	Stages      []string     `json:"stages"`
	Store       *storeCounts `json:"store,omitempty"`
}

func registerDictionaryStatsResource(s *server.MCPServer, pl *extract.Pipeline, st store.Store) {
	resource := mcp.NewResource(
		"hallucheck://dictionary/stats",
		"Dictionary Statistics",
		mcp.WithResourceDescription("Knowledge-base dictionary sizes per category, active extraction stages and store counts."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		counts := pl.Dictionary().Counts()
		out := dictionaryStats{
			Works:       counts[kb.Work],
			Collections: counts[kb.Collection],
			Persons:     counts[kb.Person],
			Stages:      pl.Stages(),
		}

		if st != nil {
			dbMu.Lock()
			stats, err := st.Stats(ctx)
			dbMu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("getting stats: %w", err)
			}
			out.Store = &storeCounts{Credits: stats.Credits, Checks: stats.Checks, DBSizeBytes: stats.DBSizeBytes}
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentChecksResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"hallucheck://checks/recent",
		"Recent Checks",
		mcp.WithResourceDescription("The 20 most recent answer checks with their verdicts."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		checks, err := st.RecentChecks(ctx, store.DefaultRecentChecks)
		if err != nil {
			return nil, fmt.Errorf("listing recent checks: %w", err)
		}

		type recentCheck struct {
			ID        string `json:"id"`
			Question  string `json:"question,omitempty"`
			Snippet   string `json:"snippet"`
			Verdict   string `json:"verdict"`
			Stage     string `json:"stage,omitempty"`
			CreatedAt string `json:"created_at"`
		}
		recent := make([]recentCheck, 0, len(checks))
		for _, c := range checks {
			snippet := []rune(c.Answer)
			if len(snippet) > 80 {
				snippet = append(snippet[:80], []rune("...")...)
			}
			recent = append(recent, recentCheck{
				ID:        c.ID,
				Question:  c.Question,
				Snippet:   string(snippet),
				Verdict:   c.Verdict,
				Stage:     c.Stage,
				CreatedAt: c.CreatedAt.Format(time.RFC3339),
			})
		}

		data, _ := json.MarshalIndent(recent, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
