package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_RefusesSecondActiveSession(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: -1}
	opts := testOptions()
	opts.InvoiceTTL = time.Hour
	m := NewManager(context.Background(), zap.NewNop(), fb, opts)

	first, err := m.Start("widget-1", testRequest())
	require.NoError(t, err)

	_, err = m.Start("widget-1", testRequest())
	require.ErrorIs(t, err, ErrSessionActive)

	// A different widget key is unaffected.
	_, err = m.Start("widget-2", testRequest())
	require.NoError(t, err)

	got, ok := m.Get(first.ID())
	require.True(t, ok)
	require.Equal(t, first.ID(), got.ID())
}

func TestManager_AllowsNewSessionAfterTerminal(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: 1}
	m := NewManager(context.Background(), zap.NewNop(), fb, testOptions())

	first, err := m.Start("widget-1", testRequest())
	require.NoError(t, err)

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	require.Equal(t, StateFulfilled, first.Snapshot().State)

	second, err := m.Start("widget-1", testRequest())
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())
}

func TestManager_CancellingManagerContextEndsSessions(t *testing.T) {
	fb := &fakeBackend{invoice: validInvoice(), settleAfter: -1}
	opts := testOptions()
	opts.InvoiceTTL = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, zap.NewNop(), fb, opts)

	ctrl, err := m.Start("widget-1", testRequest())
	require.NoError(t, err)

	cancel()
	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on manager shutdown")
	}
	require.Equal(t, StateCancelled, ctrl.Snapshot().State)
}
