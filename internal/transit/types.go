package transit

import "strconv"

// ConnectionState is the lifecycle state of the hub connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type BusStop struct {
	StopID    int           `json:"stopID"`
	StopName  string        `json:"stopName"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Routes    []RouteEntity `json:"routes"`
}

// Clone returns a copy that shares no memory with s.
func (s BusStop) Clone() BusStop {
	c := s
	if s.Routes != nil {
		c.Routes = make([]RouteEntity, len(s.Routes))
		copy(c.Routes, s.Routes)
	}
	return c
}

type RouteEntity struct {
	RouteID   int    `json:"routeID"`
	RouteNum  string `json:"routeNum,omitempty"`  // empty if the hub sent none
	StartHour string `json:"startHour,omitempty"` // display only
	EndHour   string `json:"endHour,omitempty"`
}

// Label is the route number shown to passengers, falling back to the route ID.
func (r RouteEntity) Label() string {
	if r.RouteNum != "" {
		return r.RouteNum
	}
	return strconv.Itoa(r.RouteID)
}

// Hours renders the service window, with N/A for missing bounds.
func (r RouteEntity) Hours() string {
	return orNA(r.StartHour) + " - " + orNA(r.EndHour)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

type RoutePoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsStop    bool    `json:"isStop"`
}

type UserLocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"` // nil when the sensor reports none
}

// CloneStops deep-copies a stop snapshot.
func CloneStops(stops []BusStop) []BusStop {
	if stops == nil {
		return nil
	}
	out := make([]BusStop, len(stops))
	for i, s := range stops {
		out[i] = s.Clone()
	}
	return out
}

// CloneRoute copies a polyline.
func CloneRoute(points []RoutePoint) []RoutePoint {
	if points == nil {
		return nil
	}
	out := make([]RoutePoint, len(points))
	copy(out, points)
	return out
}
