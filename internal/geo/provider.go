// Package geo is the device geolocation boundary consumed by the hub
// handshake and the map screen.
package geo

import (
	"context"
	"errors"
	"time"

	"transit-client/internal/transit"
)

// ErrPermissionDenied is returned when location access is not granted.
var ErrPermissionDenied = errors.New("location permission denied")

// Locator is a device geolocation provider.
type Locator interface {
	// RequestPermission prompts for foreground location access.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition samples the position once.
	CurrentPosition(ctx context.Context) (transit.UserLocation, error)
	// Watch streams samples every interval until ctx is done, then closes
	// the channel. Calling Watch again restarts the stream.
	Watch(ctx context.Context, interval time.Duration) (<-chan transit.UserLocation, error)
}

// Static reports a fixed position.
type Static struct {
	Location transit.UserLocation
	Denied   bool
}

func (s *Static) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !s.Denied, nil
}

func (s *Static) CurrentPosition(ctx context.Context) (transit.UserLocation, error) {
	if err := ctx.Err(); err != nil {
		return transit.UserLocation{}, err
	}
	if s.Denied {
		return transit.UserLocation{}, ErrPermissionDenied
	}
	return s.Location, nil
}

func (s *Static) Watch(ctx context.Context, interval time.Duration) (<-chan transit.UserLocation, error) {
	if s.Denied {
		return nil, ErrPermissionDenied
	}
	return tick(ctx, interval, func(time.Time) transit.UserLocation { return s.Location }), nil
}

// tick emits sample(now) immediately and then on every interval.
// Slow readers miss samples rather than stall the ticker.
func tick(ctx context.Context, interval time.Duration, sample func(time.Time) transit.UserLocation) <-chan transit.UserLocation {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	out := make(chan transit.UserLocation, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		now := time.Now()
		for {
			select {
			case out <- sample(now):
			case <-ctx.Done():
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case now = <-t.C:
			}
		}
	}()
	return out
}
