// Package reconcile turns raw hub payloads into stop and route snapshots.
//
// The hub sends collections either as a JSON array or as a JSON string whose
// content is that array. Both forms decode to the same result. Records are
// coerced one at a time: a record with a bad coordinate or identifier is
// dropped and logged, the rest of the batch is kept.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"transit-client/internal/transit"
)

// DecodeError reports a payload that could not be read as a collection.
type DecodeError struct {
	Kind string // "stops" or "route"
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s payload: %v", e.Kind, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

var errUnexpectedShape = errors.New("payload is neither a JSON array nor a JSON-encoded string")

type Decoder struct {
	log *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{log: logger}
}

type wireStop struct {
	StopID    json.RawMessage `json:"stopID"`
	StopName  json.RawMessage `json:"stopName"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Routes    []wireRoute     `json:"routes"`
}

type wireRoute struct {
	RouteID   json.RawMessage `json:"routeID"`
	RouteNum  json.RawMessage `json:"routeNum"`
	StartHour json.RawMessage `json:"startHour"`
	EndHour   json.RawMessage `json:"endHour"`
}

type wirePoint struct {
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	IsStop    json.RawMessage `json:"isStop"`
}

// Stops decodes a stops payload into a fresh snapshot.
func (d *Decoder) Stops(payload []byte) ([]transit.BusStop, error) {
	records, err := records(payload)
	if err != nil {
		return nil, &DecodeError{Kind: "stops", Err: err}
	}
	stops := make([]transit.BusStop, 0, len(records))
	seen := make(map[int]struct{}, len(records))
	for i, raw := range records {
		s, err := stopFromWire(raw)
		if err != nil {
			d.log.Warn("dropping stop record", "index", i, "error", err)
			continue
		}
		// stopID keys the snapshot; the first record wins.
		if _, dup := seen[s.StopID]; dup {
			d.log.Warn("dropping duplicate stop", "index", i, "stop_id", s.StopID)
			continue
		}
		seen[s.StopID] = struct{}{}
		stops = append(stops, s)
	}
	return stops, nil
}

// Route decodes a route points payload into a fresh polyline.
func (d *Decoder) Route(payload []byte) ([]transit.RoutePoint, error) {
	records, err := records(payload)
	if err != nil {
		return nil, &DecodeError{Kind: "route", Err: err}
	}
	points := make([]transit.RoutePoint, 0, len(records))
	for i, raw := range records {
		p, err := pointFromWire(raw)
		if err != nil {
			d.log.Warn("dropping route point", "index", i, "error", err)
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

// records resolves the string-or-array ambiguity and splits the array.
func records(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" || inner == "null" {
			return nil, nil
		}
		if inner[0] != '[' {
			return nil, errUnexpectedShape
		}
		var out []json.RawMessage
		if err := json.Unmarshal([]byte(inner), &out); err != nil {
			return nil, err
		}
		return out, nil
	case '[':
		var out []json.RawMessage
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errUnexpectedShape
	}
}

func stopFromWire(raw json.RawMessage) (transit.BusStop, error) {
	var w wireStop
	if err := json.Unmarshal(raw, &w); err != nil {
		return transit.BusStop{}, err
	}
	id, err := Int(w.StopID)
	if err != nil {
		return transit.BusStop{}, fmt.Errorf("stopID: %w", err)
	}
	lat, err := Float(w.Latitude)
	if err != nil {
		return transit.BusStop{}, fmt.Errorf("stop %d latitude: %w", id, err)
	}
	lon, err := Float(w.Longitude)
	if err != nil {
		return transit.BusStop{}, fmt.Errorf("stop %d longitude: %w", id, err)
	}
	name, _ := Text(w.StopName)
	s := transit.BusStop{StopID: id, StopName: name, Latitude: lat, Longitude: lon, Routes: []transit.RouteEntity{}}
	for _, wr := range w.Routes {
		rid, err := Int(wr.RouteID)
		if err != nil {
			return transit.BusStop{}, fmt.Errorf("stop %d routeID: %w", id, err)
		}
		r := transit.RouteEntity{RouteID: rid}
		r.RouteNum, _ = Text(wr.RouteNum)
		r.StartHour, _ = Text(wr.StartHour)
		r.EndHour, _ = Text(wr.EndHour)
		s.Routes = append(s.Routes, r)
	}
	return s, nil
}

func pointFromWire(raw json.RawMessage) (transit.RoutePoint, error) {
	var w wirePoint
	if err := json.Unmarshal(raw, &w); err != nil {
		return transit.RoutePoint{}, err
	}
	lat, err := Float(w.Latitude)
	if err != nil {
		return transit.RoutePoint{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := Float(w.Longitude)
	if err != nil {
		return transit.RoutePoint{}, fmt.Errorf("longitude: %w", err)
	}
	return transit.RoutePoint{Latitude: lat, Longitude: lon, IsStop: Bool(w.IsStop)}, nil
}

// Float reads a JSON number or numeric string. Missing values, NaN and
// infinities are errors.
func Float(raw json.RawMessage) (float64, error) {
	s, err := scalar(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}

// Int reads a JSON integer or integer string.
func Int(raw json.RawMessage) (int, error) {
	s, err := scalar(raw)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Some serializers write integral ids as 12.0.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// Text reads an optional display string; numbers are rendered as written.
// It reports false when the value is absent or null.
func Text(raw json.RawMessage) (string, bool) {
	s, err := scalar(raw)
	if err != nil {
		return "", false
	}
	return s, true
}

// Bool reads a JSON boolean or a "true"/"false" string. Anything else is false.
func Bool(raw json.RawMessage) bool {
	s, err := scalar(raw)
	if err != nil {
		return false
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func scalar(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("missing value")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return "", errors.New("expected a scalar")
	}
	return string(trimmed), nil
}
