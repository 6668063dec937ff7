package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invoke results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultNotConnected = "not_connected"
	ResultError        = "error"
)

type Collector struct {
	reg *prometheus.Registry

	HubConnected    prometheus.Gauge
	HubState        prometheus.Gauge // transit.ConnectionState ordinal
	ConnectAttempts prometheus.Counter

	Pushes         *prometheus.CounterVec // target label
	DecodeFailures *prometheus.CounterVec // target label

	Invokes        *prometheus.CounterVec   // target, result labels
	InvokeDuration *prometheus.HistogramVec // target label

	Stops       prometheus.Gauge
	RoutePoints prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		HubConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_hub_connected",
			Help: "1 if the hub connection is established, 0 otherwise.",
		}),
		HubState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_hub_connection_state",
			Help: "Hub connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_hub_connect_attempts_total",
			Help: "Total connections built by the adapter.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_hub_pushes_total",
			Help: "Total server pushes received, by target.",
		}, []string{"target"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_hub_decode_failures_total",
			Help: "Pushes dropped because the payload did not decode.",
		}, []string{"target"}),
		Invokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_hub_invocations_total",
			Help: "Total hub invocations, by target and result.",
		}, []string{"target", "result"}),
		InvokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_hub_invocation_duration_seconds",
			Help:    "Round trip time of hub invocations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"target"}),
		Stops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_stops",
			Help: "Number of stops in the latest stop list.",
		}),
		RoutePoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_route_points",
			Help: "Number of points in the latest route polyline.",
		}),
	}

	reg.MustRegister(
		c.HubConnected, c.HubState, c.ConnectAttempts,
		c.Pushes, c.DecodeFailures,
		c.Invokes, c.InvokeDuration,
		c.Stops, c.RoutePoints,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server with the given handler on addr.
func (c *Collector) Serve(addr string, h http.Handler) *http.Server {
	if h == nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.Handler())
		h = mux
	}
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	slog.Info("http listening", "addr", addr)
	return srv
}
