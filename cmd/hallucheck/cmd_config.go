package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/hallucheck/internal/config"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect resolved configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show every setting with the layer it came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.resolve()
			if err != nil {
				return err
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Config file: %s\n\n", cfg.ConfigPath)
			rows := []struct {
				name string
				v    config.ResolvedValue
			}{
				{"db_path", cfg.DBPath},
				{"seed_path", cfg.SeedPath},
				{"llm", cfg.LLM},
				{"llm_base_url", cfg.LLMBaseURL},
				{"llm_timeout_secs", cfg.LLMTimeout},
				{"mode", cfg.Mode},
			}
			for _, r := range rows {
				fmt.Fprintf(w, "%-17s %s\n", r.name, describe(r.v))
			}

			providers := make([]string, 0, len(cfg.LLMKeys))
			for p := range cfg.LLMKeys {
				providers = append(providers, p)
			}
			sort.Strings(providers)
			for _, p := range providers {
				k := cfg.LLMKeys[p]
				fmt.Fprintf(w, "%-17s set (%s: %s)\n", "api_key["+p+"]", k.Source, k.From)
			}
			return nil
		},
	})
	return cmd
}

func describe(v config.ResolvedValue) string {
	if v.Value == "" {
		return "(unset)"
	}
	if v.From != "" {
		return fmt.Sprintf("%s  [%s: %s]", v.Value, v.Source, v.From)
	}
	return fmt.Sprintf("%s  [%s]", v.Value, v.Source)
}
