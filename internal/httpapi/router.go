// Package httpapi exposes the client's live state over a small local HTTP
// API for dashboards and debugging.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"transit-client/internal/hub"
	"transit-client/internal/mapview"
	"transit-client/internal/transit"
)

type Status interface {
	State() transit.ConnectionState
}

// View is the map state served by the API.
type View interface {
	Stops() []transit.BusStop
	Route() []transit.RoutePoint
	Drawable() bool
	ClearRoute()
	Refresh(ctx context.Context) error
	DemandRouteAt(ctx context.Context, stopID, routeID int) error
}

// Feedback is the support form.
type Feedback interface {
	Submit(ctx context.Context, email, message string) error
}

type Deps struct {
	Status   Status
	View     View
	Feedback Feedback
	Metrics  http.Handler
	Logger   *slog.Logger
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

type handler struct {
	Deps
	log *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StopsResponse struct {
	Stops []transit.BusStop `json:"stops"`
	Count int               `json:"count"`
}

type RouteResponse struct {
	Points   []transit.RoutePoint `json:"points"`
	Drawable bool                 `json:"drawable"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Hub       string    `json:"hub"`
	Timestamp time.Time `json:"timestamp"`
}

type FeedbackRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{Deps: d, log: logger.With("component", "httpapi")}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "httpapi") })
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", h.health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/stops", h.stops)
		r.Post("/stops/refresh", h.refresh)
		r.Post("/stops/{stopID}/routes/{routeID}", h.demandRoute)
		r.Get("/route", h.route)
		r.Delete("/route", h.clearRoute)
		if d.Feedback != nil {
			r.Post("/feedback", h.feedback)
		}
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// hubError maps a gateway failure to a status code.
func (h *handler) hubError(w http.ResponseWriter, err error) {
	if hub.IsNotConnected(err) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	h.log.Warn("hub command failed", "error", err)
	writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	s := h.Status.State()
	resp := HealthResponse{Status: "ok", Hub: s.String(), Timestamp: time.Now().UTC()}
	if s != transit.Connected {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stops(w http.ResponseWriter, r *http.Request) {
	stops := h.View.Stops()
	if stops == nil {
		stops = []transit.BusStop{}
	}
	writeJSON(w, http.StatusOK, StopsResponse{Stops: stops, Count: len(stops)})
}

func (h *handler) route(w http.ResponseWriter, r *http.Request) {
	pts := h.View.Route()
	if pts == nil {
		pts = []transit.RoutePoint{}
	}
	writeJSON(w, http.StatusOK, RouteResponse{Points: pts, Drawable: h.View.Drawable()})
}

func (h *handler) clearRoute(w http.ResponseWriter, r *http.Request) {
	h.View.ClearRoute()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.View.Refresh(r.Context()); err != nil {
		h.hubError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) demandRoute(w http.ResponseWriter, r *http.Request) {
	stopID, err1 := strconv.Atoi(chi.URLParam(r, "stopID"))
	routeID, err2 := strconv.Atoi(chi.URLParam(r, "routeID"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "stopID and routeID must be integers"})
		return
	}
	if err := h.View.DemandRouteAt(r.Context(), stopID, routeID); err != nil {
		if errors.Is(err, mapview.ErrStopNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		h.hubError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.Feedback.Submit(r.Context(), req.Email, req.Message); err != nil {
		h.hubError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
