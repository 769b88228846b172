package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/hallucheck/internal/mcp"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction and check tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing
hallucheck_extract, hallucheck_check and hallucheck_recognize.

With --metrics-addr, extraction stage counters and latencies are served
in Prometheus format at /metrics on that address.

Examples:
  hallucheck serve
  hallucheck serve --llm none --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				srv := mcp.NewServer(mcp.ServerConfig{
					Pipeline: a.pipeline,
					Store:    a.store,
					Mode:     a.mode,
					Version:  Version,
					Logger:   a.logger,
				})

				eg, egCtx := errgroup.WithContext(ctx)

				if metricsAddr != "" {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
					httpSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

					eg.Go(func() error {
						a.logger.Info("metrics listening", "addr", metricsAddr)
						if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							return fmt.Errorf("metrics server: %w", err)
						}
						return nil
					})
					eg.Go(func() error {
						<-egCtx.Done()
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						return httpSrv.Shutdown(shutdownCtx)
					})
				}

				eg.Go(func() error {
					defer stop()
					a.logger.Info("mcp server ready", "version", Version, "stages", a.pipeline.Stages())
					err := mcp.ServeStdio(egCtx, srv, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})

				return eg.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}
