// Package model verifies a classifier bundle: pinned checksums, the
// manifest's input signature, and a smoke inference through the full
// tokenize → infer → decode path.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/emotion"
	"github.com/example/go-ekman/internal/onnx"
	"github.com/example/go-ekman/internal/service"
)

// DefaultSampleText is analyzed by the smoke inference when none is given.
const DefaultSampleText = "I am so happy to see you today"

type VerifyOptions struct {
	ManifestPath string
	Runtime      config.RuntimeConfig
	SampleText   string
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *slog.Logger
}

// newGraphRunner opens the classifier graph. Nil selects the native runner.
var newGraphRunner service.RunnerFactory

// VerifyONNX checks the manifest at opts.ManifestPath. Every step prints a
// PASS, SKIP or FAIL line; the first failing step ends verification.
func VerifyONNX(ctx context.Context, opts VerifyOptions) error {
	if opts.ManifestPath == "" {
		return errors.New("manifest path is required")
	}

	if opts.SampleText == "" {
		opts.SampleText = DefaultSampleText
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	m, err := onnx.LoadManifest(opts.ManifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	if err := checkSignature(m); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL signature: %v\n", err)
		return err
	}

	_, _ = fmt.Fprintf(opts.Stdout, "PASS signature: %d input(s), %d output(s)\n", len(m.Inputs), len(m.Outputs))

	results, err := VerifyChecksums(m)
	for _, r := range results {
		switch {
		case r.Skipped:
			_, _ = fmt.Fprintf(opts.Stdout, "SKIP %s checksum: not pinned\n", r.Name)
		case r.Err != nil:
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s checksum: %v\n", r.Name, r.Err)
		default:
			_, _ = fmt.Fprintf(opts.Stdout, "PASS %s checksum: %s\n", r.Name, r.Actual)
		}
	}

	if err != nil {
		return fmt.Errorf("verify checksums: %w", err)
	}

	report, err := smoke(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL smoke inference: %v\n", err)
		return fmt.Errorf("smoke inference: %w", err)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "PASS smoke inference: %s %.4f (%d labels)\n",
		report.DominantLabel, report.DominantProbability, len(report.Scores))

	return nil
}

// checkSignature rejects declared inputs the classifier cannot feed.
func checkSignature(m *onnx.Manifest) error {
	for _, in := range m.Inputs {
		t, err := onnx.NewZeroTensor(in.DType, in.Shape)
		if err != nil {
			return fmt.Errorf("input %q invalid: %w", in.Name, err)
		}

		if t.DType() != onnx.DTypeInt64 {
			return fmt.Errorf("input %q has dtype %s, want int64", in.Name, t.DType())
		}
	}

	return nil
}

func smoke(ctx context.Context, opts VerifyOptions) (emotion.Report, error) {
	cfg := config.DefaultConfig()
	cfg.Paths.ManifestPath = opts.ManifestPath
	cfg.Runtime = opts.Runtime

	a, _, err := service.New(cfg, service.Options{
		Logger:    opts.Logger,
		NewRunner: newGraphRunner,
	})
	if err != nil {
		return emotion.Report{}, err
	}

	if err := a.Load(ctx); err != nil {
		return emotion.Report{}, err
	}

	defer func() { _ = a.Close() }()

	return a.Analyze(ctx, opts.SampleText)
}
