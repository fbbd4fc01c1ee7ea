// Package analyzer owns the text → emotion report pipeline: vocabulary,
// tokenizer and inference engine, bound together by a small lifecycle state
// machine.
//
// An Analyzer is not safe for concurrent use. Callers that share one across
// goroutines must serialise Load, Analyze and Close themselves; the HTTP
// server does so with a weight-1 semaphore.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/go-ekman/internal/emotion"
	"github.com/example/go-ekman/internal/tokenizer"
)

// DefaultMaxLen is the sequence length the reference model was exported with.
const DefaultMaxLen = 64

const tracerName = "github.com/example/go-ekman/internal/analyzer"

// State is the lifecycle position of an Analyzer.
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine runs the classifier graph on one encoded text and returns the raw
// per-class scores.
type Engine interface {
	Run(ctx context.Context, in tokenizer.Encoding) ([]float32, error)
	Close() error
}

// EngineFactory opens an Engine. It is called by Load.
type EngineFactory func(ctx context.Context) (Engine, error)

// Options configures an Analyzer.
type Options struct {
	VocabPath string
	// MaxLen is the encoded sequence length. Zero means DefaultMaxLen.
	MaxLen int
	// Taxonomy selects and names the scores. The zero value means
	// emotion.GoEmotionsEkman.
	Taxonomy  emotion.Taxonomy
	NewEngine EngineFactory

	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Analyzer turns text into a ranked emotion report.
type Analyzer struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	state atomic.Int32

	tok    tokenizer.Tokenizer
	engine Engine
}

// New returns an Uninitialized analyzer. Nothing is read until Load.
func New(opts Options) *Analyzer {
	if opts.MaxLen == 0 {
		opts.MaxLen = DefaultMaxLen
	}

	if opts.Taxonomy.Len() == 0 {
		opts.Taxonomy = emotion.GoEmotionsEkman()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Analyzer{opts: opts, logger: logger, tracer: tracer}
}

// State returns the current lifecycle state.
func (a *Analyzer) State() State { return State(a.state.Load()) }

func (a *Analyzer) setState(s State) { a.state.Store(int32(s)) }

// Taxonomy returns the label set reports are built from.
func (a *Analyzer) Taxonomy() emotion.Taxonomy { return a.opts.Taxonomy }

// Labels returns the label names in taxonomy order.
func (a *Analyzer) Labels() []string { return a.opts.Taxonomy.Labels() }

// MaxLen returns the encoded sequence length.
func (a *Analyzer) MaxLen() int { return a.opts.MaxLen }

// Load reads the vocabulary and opens the engine. It is a no-op when the
// analyzer is already Ready, and may be called again after Close. On failure
// nothing stays open and the analyzer is Uninitialized.
func (a *Analyzer) Load(ctx context.Context) error {
	if a.State() == Ready {
		a.logger.Debug("analyzer already loaded")
		return nil
	}

	if a.opts.NewEngine == nil {
		return fmt.Errorf("%w: no engine factory configured", ErrLoad)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	start := time.Now()
	a.setState(Loading)

	vocab, err := tokenizer.LoadVocabulary(a.opts.VocabPath)
	if err != nil {
		a.setState(Uninitialized)
		return fmt.Errorf("%w: vocabulary: %w", ErrLoad, err)
	}

	engine, err := a.opts.NewEngine(ctx)
	if err != nil {
		a.setState(Uninitialized)
		return fmt.Errorf("%w: engine: %w", ErrLoad, err)
	}

	a.tok = tokenizer.New(vocab)
	a.engine = engine
	a.setState(Ready)
	a.opts.Metrics.setReady(true)

	a.logger.Info("analyzer loaded",
		"vocab_path", a.opts.VocabPath,
		"vocab_size", vocab.Len(),
		"max_len", a.opts.MaxLen,
		"labels", a.opts.Taxonomy.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Analyze encodes text, runs the engine and decodes a ranked report.
// It returns ErrNotInitialized without touching the engine unless the
// analyzer is Ready.
func (a *Analyzer) Analyze(ctx context.Context, text string) (emotion.Report, error) {
	ctx, span := a.tracer.Start(ctx, "analyzer.Analyze",
		trace.WithAttributes(attribute.Int("text_len", len(text))))
	defer span.End()

	start := time.Now()

	report, result, err := a.analyze(ctx, text)
	a.opts.Metrics.observe(result, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Debug("analyze failed", "error", err, "text_len", len(text))

		return emotion.Report{}, err
	}

	a.opts.Metrics.observeDominant(report.DominantLabel)
	span.SetAttributes(
		attribute.String("dominant", report.DominantLabel),
		attribute.Float64("dominant_probability", float64(report.DominantProbability)),
	)

	a.logger.Debug("analyze",
		"text_len", len(text),
		"dominant", report.DominantLabel,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, text string) (emotion.Report, string, error) {
	if a.State() != Ready {
		return emotion.Report{}, ResultNotInitialized, ErrNotInitialized
	}

	enc := a.tok.Encode(text, a.opts.MaxLen)

	logits, err := a.engine.Run(ctx, enc)
	if err != nil {
		return emotion.Report{}, ResultError, fmt.Errorf("%w: %w", ErrInference, err)
	}

	report, err := a.opts.Taxonomy.Decode(logits)
	if err != nil {
		return emotion.Report{}, ResultError, fmt.Errorf("%w: decode: %w", ErrInference, err)
	}

	return report, ResultOK, nil
}

// Close releases the engine and tokenizer and moves the analyzer to Closed.
// It returns ErrNotInitialized unless the analyzer is Ready.
func (a *Analyzer) Close() error {
	if a.State() != Ready {
		return ErrNotInitialized
	}

	err := a.engine.Close()

	a.engine = nil
	a.tok = nil
	a.setState(Closed)
	a.opts.Metrics.setReady(false)
	a.logger.Info("analyzer closed")

	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}

	return nil
}
