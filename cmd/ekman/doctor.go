package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/doctor"
	"github.com/example/go-ekman/internal/model"
	"github.com/example/go-ekman/internal/onnx"
)

func newDoctorCmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runDoctor(cmd, cfg, verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Also run a smoke inference through the manifest's model")

	return cmd
}

func runDoctor(cmd *cobra.Command, cfg config.Config, verify bool) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	api := cfg.Runtime.ORTAPIVersion
	if api <= 0 {
		api = onnx.DefaultAPIVersion
	}

	result := doctor.Run(doctor.Config{
		Runtime: func() (onnx.RuntimeInfo, error) {
			return onnx.DetectRuntime(cfg.Runtime)
		},
		APIVersion:   api,
		ManifestPath: cfg.Paths.ManifestPath,
		ModelPath:    cfg.Paths.ModelPath,
		VocabPath:    cfg.Paths.VocabPath,
	}, stdout)

	if verify {
		verifyStep(cmd, cfg, &result, stdout)
	}

	if result.Failed() {
		for _, f := range result.Failures() {
			_, _ = fmt.Fprintf(stderr, "FAIL: %s\n", f)
		}

		return errors.New("doctor checks failed")
	}

	_, _ = fmt.Fprintln(stdout, "doctor checks passed")

	return nil
}

// verifyStep runs model verification as an additional check. It is skipped
// when no manifest is present.
func verifyStep(cmd *cobra.Command, cfg config.Config, result *doctor.Result, w io.Writer) {
	if _, err := os.Stat(cfg.Paths.ManifestPath); err != nil {
		_, _ = fmt.Fprintf(w, "%s model verify: skipped (no manifest at %s)\n", doctor.PassMark, cfg.Paths.ManifestPath)
		return
	}

	err := model.VerifyONNX(cmd.Context(), model.VerifyOptions{
		ManifestPath: cfg.Paths.ManifestPath,
		Runtime:      cfg.Runtime,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
	})
	if err != nil {
		result.AddFailure(fmt.Sprintf("model verify: %v", err))
		_, _ = fmt.Fprintf(w, "%s model verify: %v\n", doctor.FailMark, err)
		return
	}

	_, _ = fmt.Fprintf(w, "%s model verify: ok\n", doctor.PassMark)
}
