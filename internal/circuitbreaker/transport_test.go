package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}
}

func TestTransportReturnsServerErrorsAndOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewTransport(nil, "llm-test-5xx", "test", testBreakerConfig(), zaptest.NewLogger(t))
	client := &http.Client{Transport: tr}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Expected the 503 response to be returned, got error: %v", err)
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	if tr.Breaker().State() != StateOpen {
		t.Fatalf("Expected breaker to be open, got %s", tr.Breaker().State())
	}

	_, err := client.Get(srv.URL)
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected the open breaker to short-circuit, server saw %d hits", hits)
	}
}

func TestTransportClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewTransport(nil, "llm-test-4xx", "test", testBreakerConfig(), zaptest.NewLogger(t))
	client := &http.Client{Transport: tr}

	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}
	if tr.Breaker().State() != StateClosed {
		t.Errorf("Expected breaker to stay closed on 4xx, got %s", tr.Breaker().State())
	}
}

func TestTransportCallerCancellationDoesNotTrip(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewTransport(nil, "llm-test-cancel", "test", testBreakerConfig(), zaptest.NewLogger(t))
	client := &http.Client{Transport: tr}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		_, err := client.Do(req)
		cancel()
		if err == nil {
			t.Fatal("Expected a deadline error")
		}
	}
	if tr.Breaker().State() != StateClosed {
		t.Errorf("Expected breaker to stay closed on caller cancellation, got %s", tr.Breaker().State())
	}
}
