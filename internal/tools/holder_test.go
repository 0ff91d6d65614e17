package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHolderNeverProvisioned(t *testing.T) {
	h := NewHolder(&fakeDialer{}, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	_, err := h.Current()
	assert.ErrorIs(t, err, ErrToolsUnavailable)
	assert.False(t, h.Status().Provisioned)
}

func TestHolderProvisionFailureFailsFast(t *testing.T) {
	d := &fakeDialer{openErr: &ConnectionError{Endpoint: "http://tools/sse", Err: errors.New("connection refused")}}
	h := NewHolder(d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))

	err := h.Provision(context.Background())
	require.Error(t, err)

	_, err = h.Current()
	assert.ErrorIs(t, err, ErrToolsUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	st := h.Status()
	assert.True(t, st.Provisioned)
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.Error)
}

func TestHolderRefreshSwapsSet(t *testing.T) {
	d := &fakeDialer{tools: sqlTools[:1]}
	h := NewHolder(d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	require.NoError(t, h.Provision(context.Background()))

	before, err := h.Current()
	require.NoError(t, err)
	assert.Equal(t, 1, before.Len())

	d.tools = sqlTools
	after, err := h.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, after.Len())

	current, _ := h.Current()
	assert.Same(t, after, current)
	// A reader holding the old set keeps a consistent view.
	assert.Equal(t, 1, before.Len())
}

func TestHolderFailedRefreshKeepsGoodSet(t *testing.T) {
	d := &fakeDialer{tools: sqlTools}
	h := NewHolder(d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	require.NoError(t, h.Provision(context.Background()))

	d.openErr = &ConnectionError{Endpoint: "http://tools/sse", Err: errors.New("down")}
	_, err := h.Refresh(context.Background())
	require.Error(t, err)

	set, err := h.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestHolderRefreshRecoversFromFailure(t *testing.T) {
	d := &fakeDialer{openErr: &ConnectionError{Endpoint: "http://tools/sse", Err: errors.New("down")}}
	h := NewHolder(d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	require.Error(t, h.Provision(context.Background()))

	d.openErr = nil
	d.tools = sqlTools
	_, err := h.Refresh(context.Background())
	require.NoError(t, err)

	set, err := h.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}
