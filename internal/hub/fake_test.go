package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transit-client/internal/events"
	"transit-client/internal/transit"
)

type call struct {
	conn   int
	target string
	args   []any
}

// fakeDialer records every built transport and every invocation made
// through them, in order.
type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeTransport
	calls     []call
	buildErr  error
	startErr  error
	invokeErr map[string]error
	gate      chan struct{} // when set, Start waits for it to close
	// startStates replaces the Connected report Start normally makes.
	startStates []transit.ConnectionState
}

func (d *fakeDialer) Build(h Handlers) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buildErr != nil {
		return nil, d.buildErr
	}
	t := &fakeTransport{d: d, h: h, id: len(d.conns)}
	d.conns = append(d.conns, t)
	return t, nil
}

func (d *fakeDialer) builds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) recorded() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]call, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDialer) targets() []string {
	var out []string
	for _, c := range d.recorded() {
		out = append(out, c.target)
	}
	return out
}

type fakeTransport struct {
	d  *fakeDialer
	h  Handlers
	id int

	mu     sync.Mutex
	closed bool
}

func (t *fakeTransport) Start(ctx context.Context) error {
	t.d.mu.Lock()
	gate, startErr, states := t.d.gate, t.d.startErr, t.d.startStates
	t.d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if startErr != nil {
		return startErr
	}
	if states == nil {
		states = []transit.ConnectionState{transit.Connected}
	}
	for _, st := range states {
		t.h.State(st)
	}
	return nil
}

func (t *fakeTransport) Invoke(_ context.Context, target string, args ...any) (json.RawMessage, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.calls = append(t.d.calls, call{conn: t.id, target: target, args: args})
	if err := t.d.invokeErr[target]; err != nil {
		return nil, err
	}
	return json.RawMessage(`null`), nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) push(target, payload string) {
	t.h.Push(target, json.RawMessage(payload))
}

// scriptedLocator answers the handshake with fixed results.
type scriptedLocator struct {
	granted bool
	permErr error
	posErr  error
	loc     transit.UserLocation
}

func (l *scriptedLocator) RequestPermission(context.Context) (bool, error) {
	return l.granted, l.permErr
}

func (l *scriptedLocator) CurrentPosition(context.Context) (transit.UserLocation, error) {
	return l.loc, l.posErr
}

func (l *scriptedLocator) Watch(context.Context, time.Duration) (<-chan transit.UserLocation, error) {
	return nil, errors.New("not used")
}

func newTestAdapter(t *testing.T, d *fakeDialer, loc *scriptedLocator) *Adapter {
	t.Helper()
	opts := Options{Dialer: d, Bus: events.NewBus(nil)}
	if loc != nil {
		opts.Locator = loc
	}
	a := newAdapter(opts)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func connectAndWait(t *testing.T, a *Adapter) {
	t.Helper()
	a.Connect()
	require.Eventually(t, a.IsConnected, time.Second, time.Millisecond)
}
