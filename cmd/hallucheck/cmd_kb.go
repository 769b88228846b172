package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/store"
)

// withStore opens only the store. Knowledge-base maintenance commands need
// neither the dictionary nor a generator.
func withStore(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, st *store.SQLiteStore) error) error {
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), g.logLevel))
	cfg, err := g.resolve()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	st, err := store.Open(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, st)
}

func seedCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Manage the knowledge-base seed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import works, collections, people and credits from a YAML seed",
		Long: `Import a YAML seed into the knowledge base. Importing is idempotent:
names and credits already present are skipped.

Seed format:
  works: [青花瓷, 七里香]
  collections: [我很忙]
  persons: [周杰伦, 方文山]
  credits:
    - {work: 青花瓷, relation: 作词, person: 方文山}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := kb.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, g, func(ctx context.Context, st *store.SQLiteStore) error {
				res, err := st.ImportSeed(ctx, seed)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d entities, %d credits added (%d skipped)\n",
					args[0], res.EntitiesAdded, res.CreditsAdded, res.Skipped)
				return nil
			})
		},
	})
	return cmd
}

type statsOutput struct {
	Works       int64 `json:"works"`
	Collections int64 `json:"collections"`
	Persons     int64 `json:"persons"`
	Credits     int64 `json:"credits"`
	Checks      int64 `json:"checks"`
	DBSizeBytes int64 `json:"db_size_bytes"`
}

func statsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge-base and check-log statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, st *store.SQLiteStore) error {
				s, err := st.Stats(ctx)
				if err != nil {
					return err
				}
				out := statsOutput(*s)
				if g.jsonOut {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Works:        %d\n", out.Works)
				fmt.Fprintf(w, "Collections:  %d\n", out.Collections)
				fmt.Fprintf(w, "Persons:      %d\n", out.Persons)
				fmt.Fprintf(w, "Credits:      %d\n", out.Credits)
				fmt.Fprintf(w, "Checks:       %d\n", out.Checks)
				fmt.Fprintf(w, "DB size:      %s\n", formatBytes(out.DBSizeBytes))
				return nil
			})
		},
	}
}

func checksCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List recent answer checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, st *store.SQLiteStore) error {
				recs, err := st.RecentChecks(ctx, limit)
				if err != nil {
					return err
				}
				if g.jsonOut {
					if recs == nil {
						recs = []*store.CheckRecord{}
					}
					return writeJSON(cmd.OutOrStdout(), recs)
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No checks recorded.")
					return nil
				}
				for _, r := range recs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-21s %d/%d  %s\n",
						r.CreatedAt.Local().Format(time.DateTime), r.Verdict,
						r.Supported, r.Supported+r.Unsupported, truncateRunes(r.Answer, 40))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultRecentChecks, "Number of checks to show")
	return cmd
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
