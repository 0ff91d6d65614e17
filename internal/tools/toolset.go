package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

// ToolDescriptor is an immutable, discovered tool. Invoke opens its own
// short-lived session so a descriptor stays usable after discovery closed.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	dialer   Dialer
	endpoint Endpoint
}

// Invoke calls the tool on a fresh session that is closed before returning.
func (d ToolDescriptor) Invoke(ctx context.Context, args map[string]any) (CallResult, error) {
	if d.dialer == nil {
		return CallResult{}, fmt.Errorf("tool %s has no invocation handle", d.Name)
	}
	sess, err := d.dialer.Open(ctx, d.endpoint)
	if err != nil {
		return CallResult{}, err
	}
	defer sess.Close()
	return sess.CallTool(ctx, d.Name, args)
}

// ToolSet is a name-unique set of descriptors from one discovery session.
type ToolSet struct {
	byName map[string]ToolDescriptor
	order  []string
}

// NewToolSet builds a set keeping the first descriptor for each name.
func NewToolSet(descs []ToolDescriptor) *ToolSet {
	ts := &ToolSet{byName: make(map[string]ToolDescriptor, len(descs))}
	for _, d := range descs {
		if _, dup := ts.byName[d.Name]; dup {
			continue
		}
		ts.byName[d.Name] = d
		ts.order = append(ts.order, d.Name)
	}
	return ts
}

func (ts *ToolSet) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.order)
}

func (ts *ToolSet) Get(name string) (ToolDescriptor, bool) {
	if ts == nil {
		return ToolDescriptor{}, false
	}
	d, ok := ts.byName[name]
	return d, ok
}

// List returns descriptors in discovery order.
func (ts *ToolSet) List() []ToolDescriptor {
	if ts == nil {
		return nil
	}
	out := make([]ToolDescriptor, 0, len(ts.order))
	for _, n := range ts.order {
		out = append(out, ts.byName[n])
	}
	return out
}

// Names returns the sorted tool names.
func (ts *ToolSet) Names() []string {
	if ts == nil {
		return nil
	}
	out := append([]string(nil), ts.order...)
	sort.Strings(out)
	return out
}

// Provision opens a discovery session, lists the tools and closes the session
// exactly once whatever happens.
func Provision(ctx context.Context, dialer Dialer, ep Endpoint, logger *zap.Logger) (set *ToolSet, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, span := tracing.StartSpan(ctx, "tools.provision")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = provisionStatus(err)
			span.RecordError(err)
		}
		metrics.ToolProvisioning.WithLabelValues(status).Inc()
		logger.Info("Tool discovery finished",
			zap.String("endpoint", ep.URL),
			zap.String("status", status),
			zap.Int("tools", set.Len()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	sess, err := dialer.Open(ctx, ep)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("Closing discovery session failed", zap.String("endpoint", ep.URL), zap.Error(cerr))
		}
	}()

	infos, err := sess.ListTools(ctx)
	if err != nil {
		return nil, &ConnectionError{Endpoint: ep.URL, Err: err}
	}

	descs := make([]ToolDescriptor, 0, len(infos))
	for _, info := range infos {
		descs = append(descs, ToolDescriptor{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			dialer:      dialer,
			endpoint:    ep,
		})
	}
	return NewToolSet(descs), nil
}

func provisionStatus(err error) string {
	var hs *HandshakeError
	if errors.As(err, &hs) {
		return "handshake_error"
	}
	return "connection_error"
}
