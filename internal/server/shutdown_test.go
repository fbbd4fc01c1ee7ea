package server_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/go-ekman/internal/analyzer"
	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/server"
	"github.com/example/go-ekman/internal/testutil"
	"github.com/example/go-ekman/internal/tokenizer"
)

// slowEngine ignores ctx and holds Run for delay, like a native session
// that cannot be interrupted.
type slowEngine struct {
	delay              time.Duration
	running            atomic.Bool
	closed             atomic.Bool
	closedWhileRunning atomic.Bool
}

func (e *slowEngine) Run(_ context.Context, _ tokenizer.Encoding) ([]float32, error) {
	e.running.Store(true)
	defer e.running.Store(false)

	time.Sleep(e.delay)

	return make([]float32, 28), nil
}

func (e *slowEngine) Close() error {
	if e.running.Load() {
		e.closedWhileRunning.Store(true)
	}

	e.closed.Store(true)

	return nil
}

func loadedAnalyzer(t *testing.T, eng *slowEngine) *analyzer.Analyzer {
	t.Helper()

	vocab := testutil.WriteVocab(t, "[PAD]", "[UNK]", "[CLS]", "[SEP]", "happy")

	a := analyzer.New(analyzer.Options{
		VocabPath: vocab,
		NewEngine: func(context.Context) (analyzer.Engine, error) { return eng, nil },
	})
	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	return a
}

// startInFlight serves a and returns once one /analyze request is inside the
// engine. Cancelling the returned func stops the server.
func startInFlight(t *testing.T, a *analyzer.Analyzer, eng *slowEngine, drain time.Duration) (*server.Server, context.CancelFunc, chan error) {
	t.Helper()

	addr := freePort(t)
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = addr

	srv := server.New(cfg, a).WithShutdownTimeout(drain)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- srv.Start(ctx) }()

	waitFor(t, func() bool { return server.ProbeHTTP(addr) == nil })

	go func() {
		resp, err := http.Post("http://"+addr+"/analyze", "application/json", strings.NewReader(`{"text":"happy"}`)) //nolint:noctx
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	waitFor(t, eng.running.Load)

	return srv, cancel, errCh
}

func TestServer_CloseWaitsForInFlightAnalysis(t *testing.T) {
	eng := &slowEngine{delay: 400 * time.Millisecond}
	a := loadedAnalyzer(t, eng)

	srv, cancel, errCh := startInFlight(t, a, eng, 20*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Start returned nil; want drain timeout error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	ctx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()

	if err := srv.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if eng.closedWhileRunning.Load() {
		t.Fatal("engine closed while Run was in flight")
	}

	if !eng.closed.Load() {
		t.Error("engine was not closed")
	}

	if got := a.State(); got != analyzer.Closed {
		t.Errorf("state = %v; want closed", got)
	}
}

func TestServer_CloseGivesUpWhenContextEnds(t *testing.T) {
	eng := &slowEngine{delay: 400 * time.Millisecond}
	a := loadedAnalyzer(t, eng)

	srv, cancel, errCh := startInFlight(t, a, eng, 2*time.Second)
	defer func() {
		cancel()
		<-errCh
	}()

	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()

	err := srv.Close(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v; want deadline exceeded", err)
	}

	if eng.closed.Load() {
		t.Error("engine closed although Close gave up")
	}

	if got := a.State(); got != analyzer.Ready {
		t.Errorf("state = %v; want ready", got)
	}
}

func TestServer_CloseWithoutCloser(t *testing.T) {
	srv := server.New(config.DefaultConfig(), newFakeAnalyzer())

	if err := srv.Close(context.Background()); err != nil {
		t.Fatalf("Close = %v; want nil", err)
	}
}
