package events

import "transit-client/internal/transit"

// Kind identifies an event stream on the Bus.
type Kind uint8

const (
	KindStopsUpdated Kind = iota + 1
	KindRouteUpdated
	KindLocationReceived
	KindHubError
	KindConnectionState
)

func (k Kind) String() string {
	switch k {
	case KindStopsUpdated:
		return "stops-updated"
	case KindRouteUpdated:
		return "route-updated"
	case KindLocationReceived:
		return "location-received"
	case KindHubError:
		return "hub-error"
	case KindConnectionState:
		return "connection-state"
	default:
		return "unknown"
	}
}

// Event is the closed set of payloads carried by the Bus.
type Event interface {
	Kind() Kind
	clone() Event
}

// StopsUpdated carries a full replacement stop snapshot.
type StopsUpdated struct {
	Stops []transit.BusStop
}

// RouteUpdated carries a full replacement route polyline.
type RouteUpdated struct {
	Points []transit.RoutePoint
}

// LocationReceived is the hub's acknowledgement of a SendLocation call.
type LocationReceived struct {
	Success bool
}

// HubError is an error message pushed by the hub.
type HubError struct {
	Message string
}

// StateChanged reports a connection state transition.
type StateChanged struct {
	From transit.ConnectionState
	To   transit.ConnectionState
}

func (StopsUpdated) Kind() Kind     { return KindStopsUpdated }
func (RouteUpdated) Kind() Kind     { return KindRouteUpdated }
func (LocationReceived) Kind() Kind { return KindLocationReceived }
func (HubError) Kind() Kind         { return KindHubError }
func (StateChanged) Kind() Kind     { return KindConnectionState }

func (e StopsUpdated) clone() Event     { return StopsUpdated{Stops: transit.CloneStops(e.Stops)} }
func (e RouteUpdated) clone() Event     { return RouteUpdated{Points: transit.CloneRoute(e.Points)} }
func (e LocationReceived) clone() Event { return e }
func (e HubError) clone() Event         { return e }
func (e StateChanged) clone() Event     { return e }
