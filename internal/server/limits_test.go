package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/go-ekman/internal/server"
)

// TestAnalyze_SingleFlight checks that a second request waits while the
// first one holds the analyzer.
func TestAnalyze_SingleFlight(t *testing.T) {
	a := newFakeAnalyzer()
	a.block = make(chan struct{})
	h := server.NewHandler(a, server.WithRequestTimeout(0))

	first := make(chan int, 1)
	go func() {
		first <- postJSON(t, h, `{"text":"first"}`).Code
	}()

	waitFor(t, func() bool { return a.callCount() == 1 })

	second := make(chan int, 1)
	go func() {
		second <- postJSON(t, h, `{"text":"second"}`).Code
	}()

	// The second request must not reach the analyzer while the first runs.
	time.Sleep(30 * time.Millisecond)

	if n := a.callCount(); n != 1 {
		t.Fatalf("calls while first in flight = %d; want 1", n)
	}

	close(a.block)

	for _, ch := range []chan int{first, second} {
		select {
		case code := <-ch:
			if code != http.StatusOK {
				t.Errorf("status = %d; want 200", code)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("request did not complete")
		}
	}

	if n := a.callCount(); n != 2 {
		t.Errorf("calls = %d; want 2", n)
	}
}

// TestAnalyze_WaiterCancelled checks that a request cancelled while waiting
// for the analyzer gets 503 and never calls it.
func TestAnalyze_WaiterCancelled(t *testing.T) {
	a := newFakeAnalyzer()
	a.block = make(chan struct{})
	defer close(a.block)

	h := server.NewHandler(a, server.WithRequestTimeout(0))

	go postJSON(t, h, `{"text":"holder"}`)

	waitFor(t, func() bool { return a.callCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/analyze", strings.NewReader(`{"text":"waiter"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want 503", rr.Code)
	}

	if msg := decodeError(t, rr); !strings.Contains(msg, "waiting") {
		t.Errorf("error = %q; want mention of waiting", msg)
	}

	if n := a.callCount(); n != 1 {
		t.Errorf("calls = %d; want 1", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}
