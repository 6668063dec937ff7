package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"transit-client/internal/config"
	"transit-client/internal/events"
	"transit-client/internal/geo"
	"transit-client/internal/httpapi"
	"transit-client/internal/hub"
	"transit-client/internal/logging"
	"transit-client/internal/mapview"
	"transit-client/internal/metrics"
	"transit-client/internal/prefs"
	"transit-client/internal/profiling"
	"transit-client/internal/support"
	"transit-client/internal/tracing"
	"transit-client/internal/transit"
	"transit-client/internal/transport"
)

const serviceName = "transit-client"

func main() {
	// Load configuration from .env, CONFIG_FILE and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.Init(cfg.LogLevel)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopTracing, err := tracing.Init(ctx, serviceName)
	if err != nil {
		log.Fatalf("tracing error: %v", err)
	}
	defer stopTracing()
	stopProfiling, err := profiling.Init(serviceName)
	if err != nil {
		log.Fatalf("profiling error: %v", err)
	}
	defer stopProfiling()

	store, err := prefs.Open(ctx, cfg.PrefsDSN)
	if err != nil {
		log.Fatalf("prefs error: %v", err)
	}
	defer store.Close()
	lang, err := store.EnsureLanguage(ctx, prefs.ParseLanguage(cfg.Language))
	if err != nil {
		logger.Warn("load language preference", "error", err)
	}
	logger.Info("starting", "hub_url", cfg.HubURL, "hub", cfg.HubName, "language", lang, "prefs", store.Driver())

	locator, err := buildLocator(cfg)
	if err != nil {
		log.Fatalf("location error: %v", err)
	}

	mcol := metrics.NewCollector()
	bus := events.NewBus(logger)
	events.On(bus, func(e events.StopsUpdated) { mcol.Stops.Set(float64(len(e.Stops))) })
	events.On(bus, func(e events.RouteUpdated) { mcol.RoutePoints.Set(float64(len(e.Points))) })

	dialer := transport.NewNATSDialer(transport.NATSConfig{
		URL:           cfg.HubURL,
		Hub:           cfg.HubName,
		ClientName:    cfg.HubClientName,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait(),
		InvokeTimeout: cfg.InvokeTimeout(),
	}, logger)

	mgr := hub.NewManager(hub.Options{
		Dialer:    dialer,
		Bus:       bus,
		Locator:   locator,
		Logger:    logger,
		Metrics:   wrapHubMetrics(mcol),
		LogPushes: cfg.LogPushes,
	})
	defer mgr.Close()
	gw := mgr.Gateway()

	view := mapview.Mount(ctx, gw, bus, logger)
	defer view.Close()
	form := support.Open(gw, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := view.Track(ctx, locator, cfg.LocationInterval())
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("location tracking stopped", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		router := httpapi.NewRouter(httpapi.Deps{
			Status:         mgr.Adapter(),
			View:           view,
			Feedback:       form,
			Metrics:        mcol.Handler(),
			Logger:         logger,
			AllowedOrigins: cfg.Origins(),
		})
		srv := mcol.Serve(cfg.MetricsAddr, router)
		defer func() {
			// Shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Block until context cancelled
	<-ctx.Done()
	<-done
	logger.Info("shutdown complete")
}

func buildLocator(cfg *config.Config) (geo.Locator, error) {
	switch cfg.LocationMode {
	case config.LocationDenied:
		return &geo.Static{Denied: true}, nil
	case config.LocationSimulated:
		pts, err := geo.ParsePath(cfg.LocationPath)
		if err != nil {
			return nil, fmt.Errorf("LOCATION_PATH: %w", err)
		}
		return geo.NewSimulated(pts, cfg.LocationSpeedMps)
	default:
		return &geo.Static{Location: transit.UserLocation{Latitude: cfg.LocationLat, Longitude: cfg.LocationLon}}, nil
	}
}

// wrapHubMetrics adapts our Collector to the hub.Metrics interface.
func wrapHubMetrics(c *metrics.Collector) hub.Metrics {
	if c == nil {
		return nil
	}
	return &hubMetrics{c: c}
}

type hubMetrics struct{ c *metrics.Collector }

func (h *hubMetrics) ConnectAttemptInc()            { h.c.ConnectAttempts.Inc() }
func (h *hubMetrics) PushReceivedInc(target string) { h.c.Pushes.WithLabelValues(target).Inc() }
func (h *hubMetrics) DecodeFailureInc(target string) {
	h.c.DecodeFailures.WithLabelValues(target).Inc()
}

func (h *hubMetrics) SetConnectionState(s transit.ConnectionState) {
	h.c.HubState.Set(float64(s))
	if s == transit.Connected {
		h.c.HubConnected.Set(1)
	} else {
		h.c.HubConnected.Set(0)
	}
}

func (h *hubMetrics) InvokeObserve(target string, d time.Duration, err error) {
	result := metrics.ResultOK
	switch {
	case hub.IsNotConnected(err):
		result = metrics.ResultNotConnected
	case err != nil:
		result = metrics.ResultError
	}
	h.c.Invokes.WithLabelValues(target, result).Inc()
	if result != metrics.ResultNotConnected {
		h.c.InvokeDuration.WithLabelValues(target).Observe(d.Seconds())
	}
}
