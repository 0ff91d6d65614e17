package circuitbreaker

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Transport is an http.RoundTripper guarded by a circuit breaker. 5xx and 429
// responses count as breaker failures but are still handed back to the caller
// so SDK clients can decode their error bodies.
type Transport struct {
	base    http.RoundTripper
	cb      *CircuitBreaker
	name    string
	service string
}

// NewTransport wraps base (http.DefaultTransport when nil) with a breaker named name.
func NewTransport(base http.RoundTripper, name, service string, cfg CircuitBreakerConfig, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	c := cfg.ToConfig()
	c.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errCanceledByCaller)
	}
	cb := NewCircuitBreaker(name, c, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return &Transport{base: base, cb: cb, name: name, service: service}
}

// Breaker exposes the underlying breaker for health reporting.
func (t *Transport) Breaker() *CircuitBreaker { return t.cb }

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.cb.Execute(req.Context(), func() error {
		var rtErr error
		resp, rtErr = t.base.RoundTrip(req)
		if rtErr != nil {
			if req.Context().Err() != nil {
				return errCanceledByCaller
			}
			return rtErr
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(t.name, t.service, t.cb.State(), err == nil)

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return resp, nil
	}
	if errors.Is(err, errCanceledByCaller) {
		return nil, req.Context().Err()
	}
	return resp, err
}

// errCanceledByCaller marks round trips aborted by the caller's context; these
// say nothing about the remote's health.
var errCanceledByCaller = errors.New("request canceled by caller")

// httpStatusError marks 5xx and 429 responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
