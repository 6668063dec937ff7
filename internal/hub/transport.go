package hub

import (
	"context"
	"encoding/json"
	"time"

	"transit-client/internal/transit"
)

// Handlers are the callbacks a Transport reports into. They are fixed for
// the life of the Transport.
type Handlers struct {
	// Push delivers one inbound hub message. Transports call it serially,
	// in arrival order.
	Push func(target string, payload json.RawMessage)
	// State reports lifecycle transitions: Connected after the initial
	// connect and after every reconnect, Reconnecting when the link drops,
	// Disconnected once the transport has given up or been closed.
	State func(state transit.ConnectionState)
}

// Transport is one physical connection to the hub with its own automatic
// reconnect.
type Transport interface {
	// Start connects and blocks until the first connect succeeds or fails.
	// It must report Connected through Handlers.State before the hub can
	// send its first push.
	Start(ctx context.Context) error
	Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error)
	Close() error
}

// Dialer builds transports. Build must not perform I/O.
type Dialer interface {
	Build(h Handlers) (Transport, error)
}

// Metrics receives adapter telemetry. A nil Metrics is allowed.
type Metrics interface {
	SetConnectionState(state transit.ConnectionState)
	ConnectAttemptInc()
	PushReceivedInc(target string)
	DecodeFailureInc(target string)
	// InvokeObserve is called for every Invoke; fail-fast calls report d = 0.
	InvokeObserve(target string, d time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) SetConnectionState(transit.ConnectionState) {}
func (nopMetrics) ConnectAttemptInc()                         {}
func (nopMetrics) PushReceivedInc(string)                     {}
func (nopMetrics) DecodeFailureInc(string)                    {}
func (nopMetrics) InvokeObserve(string, time.Duration, error) {}
