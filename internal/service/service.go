// Package service assembles a ready-to-load Analyzer from configuration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/example/go-ekman/internal/analyzer"
	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/emotion"
	"github.com/example/go-ekman/internal/onnx"
)

// Source values reported by Plan.
const (
	SourceManifest = "manifest"
	SourceConfig   = "config"
)

// RunnerFactory opens the graph runner behind the classifier.
type RunnerFactory func(g onnx.Graph, rc onnx.RunnerConfig) (onnx.GraphRunner, error)

// Options carries the collaborators handed to the Analyzer.
type Options struct {
	Logger  *slog.Logger
	Metrics *analyzer.Metrics
	Tracer  trace.Tracer
	// NewRunner defaults to the native ONNX Runtime runner.
	NewRunner RunnerFactory
}

// Plan is the resolved model setup: where the files are and how to read the
// classifier.
type Plan struct {
	Source     string
	Manifest   *onnx.Manifest
	VocabPath  string
	MaxLen     int
	Taxonomy   emotion.Taxonomy
	Graph      onnx.Graph
	Classifier onnx.ClassifierConfig
}

// Resolve picks the manifest when paths.manifest_path names an existing file
// and falls back to the individual paths otherwise. Manifest values win over
// analyzer.max_len and analyzer.num_classes; analyzer.output_name, when set,
// always selects the output.
func Resolve(cfg config.Config) (Plan, error) {
	if p := cfg.Paths.ManifestPath; p != "" {
		if _, err := os.Stat(p); err == nil {
			return fromManifest(cfg, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return Plan{}, fmt.Errorf("stat manifest: %w", err)
		}
	}

	return fromConfig(cfg)
}

func fromManifest(cfg config.Config, path string) (Plan, error) {
	m, err := onnx.LoadManifest(path)
	if err != nil {
		return Plan{}, err
	}

	tax, err := m.Taxonomy()
	if err != nil {
		return Plan{}, fmt.Errorf("manifest labels: %w", err)
	}

	cc := m.ClassifierConfig()
	if cfg.Analyzer.OutputName != "" {
		cc.Output = cfg.Analyzer.OutputName
	}

	return Plan{
		Source:     SourceManifest,
		Manifest:   m,
		VocabPath:  m.VocabPath(),
		MaxLen:     m.MaxLen,
		Taxonomy:   tax,
		Graph:      m.Graph(),
		Classifier: cc,
	}, nil
}

func fromConfig(cfg config.Config) (Plan, error) {
	if cfg.Analyzer.NumClasses != emotion.GoEmotionsClasses {
		return Plan{}, fmt.Errorf("analyzer.num_classes=%d needs a manifest with labels (%s not found)",
			cfg.Analyzer.NumClasses, cfg.Paths.ManifestPath)
	}

	cc := onnx.DefaultClassifierConfig()
	cc.Output = cfg.Analyzer.OutputName
	cc.NumClasses = cfg.Analyzer.NumClasses

	return Plan{
		Source:     SourceConfig,
		VocabPath:  cfg.Paths.VocabPath,
		MaxLen:     cfg.Analyzer.MaxLen,
		Taxonomy:   emotion.GoEmotionsEkman(),
		Graph:      onnx.Graph{Name: "classifier", Path: cfg.Paths.ModelPath},
		Classifier: cc,
	}, nil
}

// New resolves the model setup and returns an Uninitialized Analyzer whose
// engine factory opens the classifier on Load.
func New(cfg config.Config, opts Options) (*analyzer.Analyzer, Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Plan{}, fmt.Errorf("invalid config: %w", err)
	}

	plan, err := Resolve(cfg)
	if err != nil {
		return nil, Plan{}, err
	}

	newRunner := opts.NewRunner
	if newRunner == nil {
		newRunner = nativeRunner
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("model plan resolved",
		"source", plan.Source,
		"model", plan.Graph.Path,
		"vocab", plan.VocabPath,
		"max_len", plan.MaxLen,
		"labels", plan.Taxonomy.Len(),
	)

	a := analyzer.New(analyzer.Options{
		VocabPath: plan.VocabPath,
		MaxLen:    plan.MaxLen,
		Taxonomy:  plan.Taxonomy,
		NewEngine: EngineFactory(cfg.Runtime, plan, newRunner),
		Logger:    logger,
		Metrics:   opts.Metrics,
		Tracer:    opts.Tracer,
	})

	return a, plan, nil
}

// EngineFactory returns an analyzer.EngineFactory that detects the ORT
// library and opens plan's classifier.
func EngineFactory(rt config.RuntimeConfig, plan Plan, newRunner RunnerFactory) analyzer.EngineFactory {
	return func(ctx context.Context) (analyzer.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rc, _, err := onnx.RunnerConfigFor(rt)
		if err != nil {
			return nil, err
		}

		runner, err := newRunner(plan.Graph, rc)
		if err != nil {
			return nil, err
		}

		return onnx.NewClassifier(runner, plan.Classifier), nil
	}
}

func nativeRunner(g onnx.Graph, rc onnx.RunnerConfig) (onnx.GraphRunner, error) {
	r, err := onnx.NewRunner(g, rc)
	if err != nil {
		return nil, err
	}

	return r, nil
}
