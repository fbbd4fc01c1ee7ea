package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/example/go-ekman/internal/analyzer"
	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/server"
	"github.com/example/go-ekman/internal/service"
)

var (
	cfgFile   string
	otelOut   bool
	activeCfg config.Config

	shutdownTracing func(context.Context) error
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "ekman",
		Short:         "Rank seven basic emotions in text with a GoEmotions classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)

			if otelOut || loaded.Telemetry.Tracing {
				shutdown, err := initTracer(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("init tracing: %w", err)
				}
				shutdownTracing = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if shutdownTracing == nil {
				return nil
			}
			err := shutdownTracing(context.Background())
			shutdownTracing = nil
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	cmd.PersistentFlags().BoolVar(&otelOut, "otel", false, "Print trace spans to stderr")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newLabelsCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Analyzer.MaxLen == 0 {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

// openAnalyzer builds the analyzer from cfg and loads it. A non-nil reg
// receives the analyzer's metrics.
func openAnalyzer(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*analyzer.Analyzer, service.Plan, error) {
	opts := service.Options{
		Logger: slog.Default(),
		Tracer: otel.Tracer("github.com/example/go-ekman/cmd/ekman"),
	}
	if reg != nil {
		opts.Metrics = analyzer.NewMetrics(reg)
	}

	a, plan, err := service.New(cfg, opts)
	if err != nil {
		return nil, service.Plan{}, err
	}

	if err := a.Load(ctx); err != nil {
		return nil, service.Plan{}, err
	}

	slog.Debug("analyzer ready", "source", plan.Source, "model", plan.Graph.Path, "labels", plan.Taxonomy.Len())

	return a, plan, nil
}
