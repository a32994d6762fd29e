package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/mailhook/internal/config"
	"github.com/shaharia-lab/mailhook/internal/server"
)

// NewServeCmd returns the "serve" subcommand that starts the local HTTP harness.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		port     int
		variant  string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP harness",
		Long: `Start an HTTP server that runs the configured handler on change events
posted to /invoke. /health, /metrics (prometheus exporter) and, with the
sandbox provider, /sandbox/statistics and /sandbox/outbox are also served.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("variant") {
				cfg.Variant = variant
			}
			if cmd.Flags().Changed("provider") {
				cfg.Provider = provider
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", cfg.Port, "HTTP server port (overrides PORT env var)")
	cmd.Flags().StringVar(&variant, "variant", cfg.Variant, "Handler variant (overrides HANDLER_VARIANT)")
	cmd.Flags().StringVar(&provider, "provider", cfg.Provider, "Email provider (overrides EMAIL_PROVIDER)")
	return cmd
}

func runServe(cfg *config.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.shutdown(context.Background()) }()

	opts := []server.Option{
		server.WithTracerProvider(rt.providers.TracerProvider),
		server.WithMetricsRegistry(rt.providers.Registry),
	}
	if rt.sandbox != nil {
		opts = append(opts, server.WithSandbox(rt.sandbox))
	}

	srv := server.New(rt.handler, cfg.Port, rt.logger, opts...)
	fmt.Fprintf(os.Stderr, "mailhook harness listening on http://localhost:%d\n", cfg.Port)
	fmt.Fprintf(os.Stderr, "  POST /invoke  → run the %s handler on a change event\n", cfg.Variant)
	fmt.Fprintf(os.Stderr, "  GET  /health  → health check\n")
	return srv.Run(ctx)
}
