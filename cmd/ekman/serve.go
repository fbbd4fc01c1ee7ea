package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ekman HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var reg *prometheus.Registry
			if cfg.Telemetry.Metrics {
				reg = prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
			}

			opts := []server.Option{server.WithLogger(slog.Default())}

			var registerer prometheus.Registerer
			if reg != nil {
				registerer = reg
				opts = append(opts, server.WithMetrics(reg))
			}

			a, plan, err := openAnalyzer(ctx, cfg, registerer)
			if err != nil {
				return err
			}

			slog.Info("serving",
				"addr", cfg.Server.ListenAddr,
				"model", plan.Graph.Path,
				"labels", plan.Taxonomy.Len(),
				"metrics", cfg.Telemetry.Metrics,
			)

			srv := server.New(cfg, a, opts...).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			err = srv.Start(ctx)

			// Start may return while a request is still inside the engine.
			closeCtx := context.Background()
			if d := time.Duration(cfg.Server.RequestTimeout) * time.Second; d > 0 {
				var cancel context.CancelFunc
				closeCtx, cancel = context.WithTimeout(closeCtx, d)
				defer cancel()
			}

			if cerr := srv.Close(closeCtx); cerr != nil {
				slog.Warn("analyzer left open", "error", cerr)
			}

			return err
		},
	}

	return cmd
}

