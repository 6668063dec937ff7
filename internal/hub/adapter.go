// Package hub owns the realtime connection to the transit hub: the
// transport adapter, the typed command gateway on top of it and the
// process-scoped manager that hands out the single adapter instance.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"transit-client/internal/events"
	"transit-client/internal/geo"
	"transit-client/internal/reconcile"
	"transit-client/internal/transit"
)

// Inbound push targets.
const (
	PushConnected        = "Connected"
	PushReceivePoints    = "ReceivePoints"
	PushRoutePoints      = "RoutePoints"
	PushLocationReceived = "LocationReceived"
	PushError            = "Error"
	PushFakeBusLocation  = "ReceiveFakeBusLocation"
)

type Options struct {
	Dialer  Dialer
	Bus     *events.Bus
	Locator geo.Locator // nil skips the location steps of the handshake
	Logger  *slog.Logger
	Metrics Metrics
	// LogPushes logs every inbound push at debug level.
	LogPushes bool
}

// Adapter manages one logical hub connection and republishes normalized
// pushes on the event bus. Obtain it from a Manager.
type Adapter struct {
	dialer    Dialer
	bus       *events.Bus
	locator   geo.Locator
	log       *slog.Logger
	metrics   Metrics
	decoder   *reconcile.Decoder
	logPushes bool
	gateway   *Gateway

	// routes is built once in newAdapter and never modified, so every
	// transport built by Connect shares the same push handlers.
	routes map[string]func(payload json.RawMessage)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state transit.ConnectionState
	conn  Transport
	gen   uint64 // identifies conn; callbacks from older transports are ignored
}

func newAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var m Metrics = nopMetrics{}
	if opts.Metrics != nil {
		m = opts.Metrics
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		dialer:    opts.Dialer,
		bus:       bus,
		locator:   opts.Locator,
		log:       logger.With("component", "hub"),
		metrics:   m,
		decoder:   reconcile.NewDecoder(logger.With("component", "reconcile")),
		logPushes: opts.LogPushes,
		ctx:       ctx,
		cancel:    cancel,
		state:     transit.Disconnected,
	}
	a.gateway = &Gateway{a: a}
	a.routes = map[string]func(json.RawMessage){
		PushConnected:        a.onConnected,
		PushReceivePoints:    a.onReceivePoints,
		PushRoutePoints:      a.onRoutePoints,
		PushLocationReceived: a.onLocationReceived,
		PushError:            a.onError,
		PushFakeBusLocation:  a.onFakeBusLocation,
	}
	m.SetConnectionState(transit.Disconnected)
	return a
}

// Gateway returns the typed command façade bound to this adapter.
func (a *Adapter) Gateway() *Gateway { return a.gateway }

// Bus returns the bus pushes are published on.
func (a *Adapter) Bus() *events.Bus { return a.bus }

// State returns the current connection state.
func (a *Adapter) State() transit.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsConnected reports whether commands can be sent right now.
func (a *Adapter) IsConnected() bool { return a.State() == transit.Connected }

// Connect starts a connection unless one is already established or in
// progress. It returns immediately; progress is published as
// events.StateChanged.
func (a *Adapter) Connect() {
	a.mu.Lock()
	if a.state == transit.Connected || a.state == transit.Connecting {
		a.mu.Unlock()
		a.log.Debug("hub connection already exists or is connecting")
		return
	}
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		a.log.Warn("hub adapter closed, not connecting")
		return
	}
	if a.dialer == nil {
		a.mu.Unlock()
		a.log.Error("hub adapter has no dialer")
		return
	}
	gen := a.gen + 1
	t, err := a.dialer.Build(Handlers{
		Push:  func(target string, payload json.RawMessage) { a.dispatch(gen, target, payload) },
		State: func(s transit.ConnectionState) { a.transition(gen, s) },
	})
	if err != nil {
		a.mu.Unlock()
		a.log.Error("build hub connection", "error", err)
		return
	}
	old := a.conn
	a.gen = gen
	a.conn = t
	prev := a.state
	a.state = transit.Connecting
	a.wg.Add(1)
	a.mu.Unlock()

	a.metrics.ConnectAttemptInc()
	a.stateChanged(prev, transit.Connecting)
	if old != nil {
		_ = old.Close()
	}

	// Start reports Connected through Handlers.State; the adapter never
	// infers it, so a drop racing Start's return is not overwritten.
	go func() {
		defer a.wg.Done()
		if err := t.Start(a.ctx); err != nil {
			a.log.Error("error starting hub connection", "error", err)
			a.transition(gen, transit.Disconnected)
			return
		}
		a.log.Info("hub connection started")
	}()
}

// Invoke sends one RPC to the hub. It fails fast with NotConnectedError
// when the connection is not Connected; nothing is queued.
func (a *Adapter) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	a.mu.Lock()
	t, state := a.conn, a.state
	a.mu.Unlock()
	if state != transit.Connected || t == nil {
		err := &NotConnectedError{Target: target}
		a.metrics.InvokeObserve(target, 0, err)
		return nil, err
	}
	start := time.Now()
	res, err := t.Invoke(ctx, target, args...)
	a.metrics.InvokeObserve(target, time.Since(start), err)
	if err != nil {
		return nil, &InvocationError{Target: target, Err: err}
	}
	return res, nil
}

// Close stops the live transport and any running handshake. The adapter
// cannot connect again afterwards.
func (a *Adapter) Close() error {
	// Goroutines are added under mu after checking ctx, so once mu has been
	// taken here no further Add can race the Wait below.
	a.cancel()
	a.mu.Lock()
	t := a.conn
	a.conn = nil
	a.gen++
	prev := a.state
	a.state = transit.Disconnected
	a.mu.Unlock()

	var err error
	if t != nil {
		err = t.Close()
	}
	if prev != transit.Disconnected {
		a.stateChanged(prev, transit.Disconnected)
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) transition(gen uint64, s transit.ConnectionState) {
	a.mu.Lock()
	if gen != a.gen || a.state == s {
		a.mu.Unlock()
		return
	}
	prev := a.state
	a.state = s
	a.mu.Unlock()
	a.stateChanged(prev, s)
}

func (a *Adapter) stateChanged(from, to transit.ConnectionState) {
	a.log.Info("hub connection state", "from", from.String(), "to", to.String())
	a.metrics.SetConnectionState(to)
	a.bus.Publish(events.StateChanged{From: from, To: to})
}

func (a *Adapter) dispatch(gen uint64, target string, payload json.RawMessage) {
	a.mu.Lock()
	current := gen == a.gen
	a.mu.Unlock()
	if !current {
		return
	}
	a.metrics.PushReceivedInc(target)
	if a.logPushes {
		a.log.Debug("hub push", "target", target, "payload", string(payload))
	}
	h, ok := a.routes[target]
	if !ok {
		a.log.Debug("unhandled hub push", "target", target)
		return
	}
	h(payload)
}

func (a *Adapter) onConnected(json.RawMessage) {
	a.log.Info("hub connection established")
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.wg.Done()
		a.handshake(a.ctx)
	}()
}

// handshake sends the device position and asks for stops. It runs once per
// Connected push, off the inbound delivery goroutine.
func (a *Adapter) handshake(ctx context.Context) {
	if a.locator == nil {
		a.log.Warn("no location provider, skipping location handshake")
		return
	}
	granted, err := a.locator.RequestPermission(ctx)
	if err != nil {
		a.log.Error("failed to get user location", "error", err)
		return
	}
	if !granted {
		a.log.Warn("permission to access location was denied", "error", geo.ErrPermissionDenied)
		return
	}
	loc, err := a.locator.CurrentPosition(ctx)
	if err != nil {
		a.log.Error("failed to get user location", "error", err)
		return
	}
	a.log.Info("sending actual location", "latitude", loc.Latitude, "longitude", loc.Longitude)
	if err := a.gateway.SendLocation(ctx, loc.Latitude, loc.Longitude); err != nil {
		a.log.Error("error sending location", "error", err)
	}
	if err := a.gateway.RequestStops(ctx); err != nil {
		a.log.Error("error requesting stops", "error", err)
	}
}

func (a *Adapter) onReceivePoints(payload json.RawMessage) {
	stops, err := a.decoder.Stops(payload)
	if err != nil {
		a.metrics.DecodeFailureInc(PushReceivePoints)
		a.log.Error("failed to parse bus stops", "error", err)
		return
	}
	a.bus.Publish(events.StopsUpdated{Stops: stops})
}

func (a *Adapter) onRoutePoints(payload json.RawMessage) {
	points, err := a.decoder.Route(payload)
	if err != nil {
		a.metrics.DecodeFailureInc(PushRoutePoints)
		a.log.Error("failed to parse route points", "error", err)
		return
	}
	a.bus.Publish(events.RouteUpdated{Points: points})
}

func (a *Adapter) onLocationReceived(payload json.RawMessage) {
	ok := reconcile.Bool(payload)
	if ok {
		a.log.Info("location saved successfully")
	} else {
		a.log.Warn("location failed to save")
	}
	a.bus.Publish(events.LocationReceived{Success: ok})
}

func (a *Adapter) onError(payload json.RawMessage) {
	msg, ok := reconcile.Text(payload)
	if !ok {
		msg = string(payload)
	}
	a.log.Error("server error", "message", msg)
	a.bus.Publish(events.HubError{Message: msg})
}

func (a *Adapter) onFakeBusLocation(payload json.RawMessage) {
	a.log.Debug("fake bus location", "coordinates", string(payload))
}

// IsNotConnected reports whether err is a NotConnectedError.
func IsNotConnected(err error) bool { return errors.Is(err, ErrNotConnected) }
