package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/model"
)

func newModelVerifyCmd() *cobra.Command {
	var (
		manifestPath string
		sample       string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check manifest checksums and run a smoke inference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if manifestPath == "" {
				manifestPath = cfg.Paths.ManifestPath
			}

			return verifyONNX(cmd.Context(), manifestPath, cfg, sample, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to manifest.json (default: paths.manifest_path)")
	cmd.Flags().StringVar(&sample, "text", model.DefaultSampleText, "Sample text for the smoke inference")

	return cmd
}

func verifyONNX(ctx context.Context, manifestPath string, cfg config.Config, sample string, stdout, stderr io.Writer) error {
	err := model.VerifyONNX(ctx, model.VerifyOptions{
		ManifestPath: manifestPath,
		Runtime:      cfg.Runtime,
		SampleText:   sample,
		Stdout:       stdout,
		Stderr:       stderr,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("model verify failed: %w", err)
	}

	_, _ = fmt.Fprintln(stdout, "model verification passed")

	return nil
}
