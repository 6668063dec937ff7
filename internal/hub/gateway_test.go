package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_FailsClosedWhenDisconnected(t *testing.T) {
	d := &fakeDialer{}
	g := newTestAdapter(t, d, nil).Gateway()
	ctx := context.Background()

	ops := map[string]func() error{
		"RequestStops":  func() error { return g.RequestStops(ctx) },
		"DemandRoute":   func() error { return g.DemandRoute(ctx, 3, 1) },
		"SendFeedback":  func() error { return g.SendFeedback(ctx, "a@b.c", "hi") },
		"SendLocation":  func() error { return g.SendLocation(ctx, 1, 2) },
		"EmptyFeedback": func() error { return g.SendFeedback(ctx, "a@b.c", "") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrNotConnected)
		})
	}
	assert.Empty(t, d.recorded())
	assert.Equal(t, 0, d.builds())
}

func TestGateway_SendFeedbackSkipsBlankMessages(t *testing.T) {
	d := &fakeDialer{}
	a := newTestAdapter(t, d, nil)
	connectAndWait(t, a)
	g := a.Gateway()
	ctx := context.Background()

	require.NoError(t, g.SendFeedback(ctx, "me@example.com", ""))
	require.NoError(t, g.SendFeedback(ctx, "me@example.com", "   "))
	require.NoError(t, g.SendFeedback(ctx, "me@example.com", "\n\t"))
	assert.Empty(t, d.recorded())

	require.NoError(t, g.SendFeedback(ctx, "me@example.com", "hi"))
	calls := d.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, CmdGetFeedback, calls[0].target)
	assert.Equal(t, []any{feedbackArgs{Email: "me@example.com", Message: "hi"}}, calls[0].args)
}

func TestGateway_Commands(t *testing.T) {
	d := &fakeDialer{}
	a := newTestAdapter(t, d, nil)
	connectAndWait(t, a)
	g := a.Gateway()
	ctx := context.Background()

	require.NoError(t, g.RequestStops(ctx))
	require.NoError(t, g.DemandRoute(ctx, 12, 7))
	require.NoError(t, g.SendLocation(ctx, 41.1, 44.6))

	calls := d.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, CmdGetStops, calls[0].target)
	assert.Equal(t, CmdDemandRoute, calls[1].target)
	assert.Equal(t, []any{12, 7}, calls[1].args)
	assert.Equal(t, CmdSendLocation, calls[2].target)
	assert.Equal(t, []any{locationArgs{Latitude: 41.1, Longitude: 44.6}}, calls[2].args)
}

func TestGateway_LazyConnect(t *testing.T) {
	d := &fakeDialer{}
	a := newTestAdapter(t, d, nil)
	g := a.Gateway()

	assert.False(t, g.IsConnected())
	g.Connect()
	g.Connect()

	assert.Equal(t, 1, d.builds())
}
