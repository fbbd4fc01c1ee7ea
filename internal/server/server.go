package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/example/go-ekman/internal/analyzer"
	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/emotion"
)

// RequestIDHeader carries the per-request id on every response.
const RequestIDHeader = "X-Request-ID"

const contentTypeCBOR = "application/cbor"

// maxBodyOverhead bounds the request body beyond the text limit itself.
const maxBodyOverhead = 64 << 10

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Analyzer is the part of *analyzer.Analyzer the HTTP surface uses.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (emotion.Report, error)
	Labels() []string
	State() analyzer.State
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	requestTimeout time.Duration
	logger         *slog.Logger
	gatherer       prometheus.Gatherer
	tracer         trace.Tracer
	// gate is shared with Server.Close so the analyzer is never released
	// under an in-flight request.
	gate *semaphore.Weighted
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for
// POST /analyze. Zero disables the limit.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithRequestTimeout sets the per-request analysis deadline. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithTracer sets the tracer for request spans. Defaults to the global
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func withGate(g *semaphore.Weighted) Option {
	return func(o *options) { o.gate = g }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	analyzer Analyzer
	opts     options
	// sem admits one analysis at a time; the analyzer is not safe for
	// concurrent use.
	sem    *semaphore.Weighted
	log    *slog.Logger
	tracer trace.Tracer
}

// NewHandler returns an http.Handler that serves /health, /labels,
// POST /analyze and, when metrics are configured, /metrics.
func NewHandler(a Analyzer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	tracer := opts.tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/example/go-ekman/internal/server")
	}

	sem := opts.gate
	if sem == nil {
		sem = semaphore.NewWeighted(1)
	}

	h := &handler{
		analyzer: a,
		opts:     opts,
		sem:      sem,
		log:      opts.logger,
		tracer:   tracer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/labels", h.handleLabels)
	mux.HandleFunc("/analyze", h.handleAnalyze)

	if opts.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))
	}

	return withRequestID(mux)
}

// withRequestID stamps every response with a request id, reusing a
// well-formed incoming one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		r.Header.Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := h.analyzer.State()

	status, code := "ok", http.StatusOK
	if state != analyzer.Ready {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status":   status,
		"analyzer": state.String(),
		"version":  buildVersion(),
	})
}

func (h *handler) handleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	labels := h.analyzer.Labels()
	if labels == nil {
		labels = []string{}
	}

	writeJSON(w, http.StatusOK, labels)
}

type analyzeRequest struct {
	Text *string `json:"text"`
}

func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	useCBOR := wantsCBOR(r)
	reqID := r.Header.Get(RequestIDHeader)

	if r.Method != http.MethodPost {
		writeErrorAs(w, useCBOR, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "server.analyze",
		trace.WithAttributes(attribute.String("request_id", reqID)))
	defer span.End()

	req, status, err := h.decode(w, r, useCBOR)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeErrorAs(w, useCBOR, status, err.Error())

		return
	}

	text := *req.Text

	// Acquire the analyzer, honouring cancellation while waiting.
	if err := h.sem.Acquire(ctx, 1); err != nil {
		span.SetStatus(codes.Error, "cancelled while waiting")
		writeErrorAs(w, useCBOR, http.StatusServiceUnavailable, "request cancelled while waiting for analyzer")

		return
	}
	defer h.sem.Release(1)

	if h.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	report, err := h.analyzer.Analyze(ctx, text)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		code, msg := statusFor(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)

		level := slog.LevelError
		if code != http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		h.log.Log(r.Context(), level, "analysis failed",
			slog.String("request_id", reqID),
			slog.Int("text_len", len(text)),
			slog.Int64("duration_ms", durationMS),
			slog.Int("status", code),
			slog.String("error", err.Error()),
		)
		writeErrorAs(w, useCBOR, code, msg)

		return
	}

	h.log.InfoContext(r.Context(), "analysis complete",
		slog.String("request_id", reqID),
		slog.Int("text_len", len(text)),
		slog.Int64("duration_ms", durationMS),
		slog.String("dominant", report.DominantLabel),
	)

	if useCBOR {
		writeCBOR(w, http.StatusOK, report)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// decode reads the request body. On failure it returns the HTTP status to
// answer with.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, useCBOR bool) (analyzeRequest, int, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return analyzeRequest{}, http.StatusBadRequest, errors.New("request body is required")
	}

	var body io.Reader = r.Body
	if h.opts.maxTextBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)+maxBodyOverhead)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return analyzeRequest{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}

		return analyzeRequest{}, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}

	var req analyzeRequest
	if useCBOR {
		if err := cbor.Unmarshal(data, &req); err != nil {
			return analyzeRequest{}, http.StatusBadRequest, fmt.Errorf("invalid CBOR: %w", err)
		}
	} else if err := json.Unmarshal(data, &req); err != nil {
		return analyzeRequest{}, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err)
	}

	if req.Text == nil {
		return analyzeRequest{}, http.StatusBadRequest, errors.New("text field is required")
	}

	if h.opts.maxTextBytes > 0 && len(*req.Text) > h.opts.maxTextBytes {
		return analyzeRequest{}, http.StatusRequestEntityTooLarge,
			fmt.Errorf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes)
	}

	return req, 0, nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analyzer.ErrNotInitialized):
		return http.StatusServiceUnavailable, "analyzer not initialized"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func wantsCBOR(r *http.Request) bool {
	for _, h := range []string{r.Header.Get("Content-Type"), r.Header.Get("Accept")} {
		if mt, _, err := mime.ParseMediaType(h); err == nil && mt == contentTypeCBOR {
			return true
		}
	}

	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCBOR(w http.ResponseWriter, status int, v any) {
	data, err := cbor.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode CBOR: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorAs(w http.ResponseWriter, useCBOR bool, status int, msg string) {
	if useCBOR {
		writeCBOR(w, status, map[string]string{"error": msg})
		return
	}

	writeError(w, status, msg)
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.ServerConfig
	analyzer        Analyzer
	opts            []Option
	shutdownTimeout time.Duration
	gate            *semaphore.Weighted
}

// New returns a server for a. The analyzer should already be loaded; until it
// is, /health and /analyze answer 503.
func New(cfg config.Config, a Analyzer, opts ...Option) *Server {
	return &Server{
		cfg:             cfg.Server,
		analyzer:        a,
		opts:            opts,
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		gate:            semaphore.NewWeighted(1),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Handler builds the request handler from the server config and options.
func (s *Server) Handler() http.Handler {
	opts := []Option{
		WithMaxTextBytes(s.cfg.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.RequestTimeout) * time.Second),
	}

	opts = append(opts, s.opts...)

	return NewHandler(s.analyzer, append(opts, withGate(s.gate))...)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.analyzer == nil {
		return errors.New("server requires an analyzer")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			// Drop the remaining connections so their request contexts end.
			_ = httpServer.Close()
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// Close waits until no request holds the analyzer, then closes it. Requests
// admitted afterwards get 503. If ctx ends first the analyzer is left open
// and ctx's error is returned.
func (s *Server) Close(ctx context.Context) error {
	c, ok := s.analyzer.(io.Closer)
	if !ok {
		return nil
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for in-flight analysis: %w", err)
	}
	defer s.gate.Release(1)

	if err := c.Close(); err != nil && !errors.Is(err, analyzer.ErrNotInitialized) {
		return err
	}

	return nil
}

// ProbeHTTP checks that the server at addr answers /health with 200.
func ProbeHTTP(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
