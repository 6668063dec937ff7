// Package mapview holds the map screen's view of the realtime layer: the
// latest stop list, the latest route polyline, the selected stop and the
// device location.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transit-client/internal/events"
	"transit-client/internal/geo"
	"transit-client/internal/transit"
)

var (
	ErrNoStopSelected = errors.New("no stop selected")
	ErrStopNotFound   = errors.New("stop not found")
)

// Hub is the slice of hub.Gateway the map screen uses.
type Hub interface {
	Connect()
	IsConnected() bool
	RequestStops(ctx context.Context) error
	DemandRoute(ctx context.Context, routeID, stopID int) error
	SendLocation(ctx context.Context, latitude, longitude float64) error
}

type State struct {
	hub Hub
	log *slog.Logger

	mu        sync.RWMutex
	stops     []transit.BusStop
	route     []transit.RoutePoint
	selected  *transit.BusStop
	sheetOpen bool
	location  *transit.UserLocation
	located   bool

	bus  *events.Bus
	subs []*events.Subscription
}

// Mount connects (a no-op when already connected), subscribes to stop and
// route updates and requests the stop list when the hub is already up.
func Mount(ctx context.Context, h Hub, bus *events.Bus, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{hub: h, bus: bus, log: logger.With("component", "mapview")}

	h.Connect()
	s.subs = append(s.subs,
		events.On(bus, s.onStops),
		events.On(bus, s.onRoute),
	)
	if h.IsConnected() {
		if err := h.RequestStops(ctx); err != nil {
			s.log.Warn("request stops on mount", "error", err)
		}
	}
	return s
}

func (s *State) onStops(e events.StopsUpdated) {
	s.mu.Lock()
	s.stops = e.Stops
	s.mu.Unlock()
	s.log.Debug("stops replaced", "count", len(e.Stops))
}

func (s *State) onRoute(e events.RouteUpdated) {
	s.mu.Lock()
	s.route = e.Points
	s.mu.Unlock()
	s.log.Debug("route replaced", "points", len(e.Points))
}

// Close drops every bus subscription made by Mount.
func (s *State) Close() {
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
}

func (s *State) Stops() []transit.BusStop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transit.CloneStops(s.stops)
}

func (s *State) Route() []transit.RoutePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transit.CloneRoute(s.route)
}

// Drawable reports whether the route has enough points for a polyline.
func (s *State) Drawable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.route) > 1
}

func (s *State) ClearRoute() {
	s.mu.Lock()
	s.route = nil
	s.mu.Unlock()
}

// SelectStop opens the stop sheet for stopID.
func (s *State) SelectStop(stopID int) (transit.BusStop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.stops {
		if s.stops[i].StopID == stopID {
			st := s.stops[i].Clone()
			s.selected = &st
			s.sheetOpen = true
			return st.Clone(), true
		}
	}
	return transit.BusStop{}, false
}

func (s *State) Selected() (transit.BusStop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return transit.BusStop{}, false
	}
	return s.selected.Clone(), true
}

func (s *State) SheetOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sheetOpen
}

func (s *State) CloseSheet() {
	s.mu.Lock()
	s.sheetOpen = false
	s.mu.Unlock()
}

// DemandRoute closes the sheet and asks the hub for routeID's polyline as
// seen from the selected stop.
func (s *State) DemandRoute(ctx context.Context, routeID int) error {
	s.mu.Lock()
	s.sheetOpen = false
	sel := s.selected
	s.mu.Unlock()
	if sel == nil {
		return ErrNoStopSelected
	}
	s.log.Info("route demanded", "route_id", routeID, "stop_id", sel.StopID)
	return s.hub.DemandRoute(ctx, routeID, sel.StopID)
}

// DemandRouteAt selects stopID and demands routeID from it in one step, so
// a concurrent selection cannot change the stop the request is sent for.
func (s *State) DemandRouteAt(ctx context.Context, stopID, routeID int) error {
	s.mu.Lock()
	found := false
	for i := range s.stops {
		if s.stops[i].StopID == stopID {
			st := s.stops[i].Clone()
			s.selected = &st
			found = true
			break
		}
	}
	s.sheetOpen = false
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %d", ErrStopNotFound, stopID)
	}
	s.log.Info("route demanded", "route_id", routeID, "stop_id", stopID)
	return s.hub.DemandRoute(ctx, routeID, stopID)
}

// Refresh connects lazily and requests the stop list.
func (s *State) Refresh(ctx context.Context) error {
	s.hub.Connect()
	return s.hub.RequestStops(ctx)
}

// UpdateLocation records a device sample. The first sample ever seen sends
// the location and requests stops; later samples only move the marker.
func (s *State) UpdateLocation(ctx context.Context, loc transit.UserLocation) error {
	s.mu.Lock()
	s.location = &loc
	first := !s.located
	s.located = true
	s.mu.Unlock()
	if !first {
		return nil
	}

	var errs []error
	if err := s.hub.SendLocation(ctx, loc.Latitude, loc.Longitude); err != nil {
		s.log.Warn("send first location", "error", err)
		errs = append(errs, fmt.Errorf("send location: %w", err))
	}
	if err := s.hub.RequestStops(ctx); err != nil {
		s.log.Warn("request stops after first location", "error", err)
		errs = append(errs, fmt.Errorf("request stops: %w", err))
	}
	return errors.Join(errs...)
}

func (s *State) Location() (transit.UserLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return transit.UserLocation{}, false
	}
	return *s.location, true
}

// Track asks for permission, waits for the hub to be connected and then
// feeds watch samples into UpdateLocation until ctx is done. Waiting keeps
// the first-sample send from being spent while the connection is coming up.
func (s *State) Track(ctx context.Context, loc geo.Locator, interval time.Duration) error {
	ok, err := loc.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request permission: %w", err)
	}
	if !ok {
		s.log.Info("location permission denied")
		return geo.ErrPermissionDenied
	}
	if err := s.waitConnected(ctx); err != nil {
		return err
	}
	ch, err := loc.Watch(ctx, interval)
	if err != nil {
		return fmt.Errorf("watch position: %w", err)
	}
	for sample := range ch {
		_ = s.UpdateLocation(ctx, sample)
	}
	return ctx.Err()
}

func (s *State) waitConnected(ctx context.Context) error {
	up := make(chan struct{}, 1)
	sub := events.On(s.bus, func(e events.StateChanged) {
		if e.To == transit.Connected {
			select {
			case up <- struct{}{}:
			default:
			}
		}
	})
	defer s.bus.Unsubscribe(sub)

	if s.hub.IsConnected() {
		return nil
	}
	s.log.Debug("waiting for hub connection before tracking")
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
