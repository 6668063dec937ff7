package geo

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"transit-client/internal/transit"
)

// Simulated is a device moving along a path at a constant speed, looping
// back to the start when it reaches the end. It is used for demos and
// headless runs where no GPS exists.
type Simulated struct {
	path     *Path
	speedMps float64
	now      func() time.Time

	mu    sync.Mutex
	start time.Time
}

func NewSimulated(pts []Point, speedMps float64) (*Simulated, error) {
	if len(pts) == 0 {
		return nil, errors.New("simulated location needs at least one path point")
	}
	if speedMps < 0 {
		return nil, errors.New("speed must not be negative")
	}
	return &Simulated{path: NewPath(pts), speedMps: speedMps, now: time.Now}, nil
}

func (s *Simulated) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulated) CurrentPosition(ctx context.Context) (transit.UserLocation, error) {
	if err := ctx.Err(); err != nil {
		return transit.UserLocation{}, err
	}
	return s.sample(s.now()), nil
}

func (s *Simulated) Watch(ctx context.Context, interval time.Duration) (<-chan transit.UserLocation, error) {
	return tick(ctx, interval, func(time.Time) transit.UserLocation { return s.sample(s.now()) }), nil
}

// sample returns the position at wall-clock time at. The first sample
// anchors the start of the walk.
func (s *Simulated) sample(at time.Time) transit.UserLocation {
	s.mu.Lock()
	if s.start.IsZero() {
		s.start = at
	}
	elapsed := at.Sub(s.start).Seconds()
	s.mu.Unlock()

	dist := 0.0
	if total := s.path.Length(); total > 0 && elapsed > 0 {
		dist = math.Mod(elapsed*s.speedMps, total)
	}
	lat, lon, bearing := s.path.At(dist)
	loc := transit.UserLocation{Latitude: lat, Longitude: lon}
	if s.path.Length() > 0 {
		loc.Heading = &bearing
	}
	return loc
}
