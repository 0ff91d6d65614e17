package tools

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
)

type holderState struct {
	set           *ToolSet
	err           error
	provisionedAt time.Time
}

// Status is a point-in-time view of the holder for health reporting.
type Status struct {
	Provisioned   bool
	Available     bool
	Count         int
	Error         string
	ProvisionedAt time.Time
}

// Holder is the process-wide tool set. Readers never block; Refresh swaps the
// whole set atomically.
type Holder struct {
	state    atomic.Pointer[holderState]
	dialer   Dialer
	endpoint Endpoint
	logger   *zap.Logger
}

func NewHolder(dialer Dialer, ep Endpoint, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{dialer: dialer, endpoint: ep, logger: logger}
}

// Endpoint returns the endpoint the holder discovers against.
func (h *Holder) Endpoint() Endpoint { return h.endpoint }

func (h *Holder) Set(ts *ToolSet) {
	if ts == nil {
		ts = NewToolSet(nil)
	}
	h.state.Store(&holderState{set: ts, provisionedAt: time.Now()})
	metrics.ToolsAvailable.Set(float64(ts.Len()))
}

// Fail records a provisioning failure. Subsequent Current calls fail fast.
func (h *Holder) Fail(err error) {
	h.state.Store(&holderState{err: err, provisionedAt: time.Now()})
	metrics.ToolsAvailable.Set(0)
}

// Current returns the bound set, or an error wrapping ErrToolsUnavailable when
// provisioning failed or never ran. An empty set is valid.
func (h *Holder) Current() (*ToolSet, error) {
	st := h.state.Load()
	if st == nil {
		return nil, fmt.Errorf("%w: discovery has not run", ErrToolsUnavailable)
	}
	if st.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolsUnavailable, st.err)
	}
	return st.set, nil
}

// Provision runs discovery and binds the result, or records the failure.
func (h *Holder) Provision(ctx context.Context) error {
	ts, err := Provision(ctx, h.dialer, h.endpoint, h.logger)
	if err != nil {
		h.Fail(err)
		return err
	}
	h.Set(ts)
	return nil
}

// Refresh re-runs discovery and swaps the set on success. A failed refresh
// keeps a previously good set in place.
func (h *Holder) Refresh(ctx context.Context) (*ToolSet, error) {
	ts, err := Provision(ctx, h.dialer, h.endpoint, h.logger)
	if err != nil {
		if prev := h.state.Load(); prev != nil && prev.err == nil {
			h.logger.Warn("Tool refresh failed, keeping previous set",
				zap.Int("tools", prev.set.Len()), zap.Error(err))
			return nil, err
		}
		h.Fail(err)
		return nil, err
	}
	h.Set(ts)
	return ts, nil
}

func (h *Holder) Status() Status {
	st := h.state.Load()
	if st == nil {
		return Status{}
	}
	s := Status{Provisioned: true, ProvisionedAt: st.provisionedAt}
	if st.err != nil {
		s.Error = st.err.Error()
		return s
	}
	s.Available = true
	s.Count = st.set.Len()
	return s
}
