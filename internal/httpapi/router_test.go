package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-client/internal/events"
	"transit-client/internal/hub"
	"transit-client/internal/mapview"
	"transit-client/internal/support"
	"transit-client/internal/transit"
)

type fakeStatus struct{ s transit.ConnectionState }

func (f *fakeStatus) State() transit.ConnectionState { return f.s }

type fakeHub struct {
	mu       sync.Mutex
	err      error
	demands  [][2]int
	feedback [][2]string
}

func (h *fakeHub) Connect() {}

func (h *fakeHub) IsConnected() bool { return h.err == nil }

func (h *fakeHub) RequestStops(context.Context) error { return h.err }

func (h *fakeHub) SendLocation(context.Context, float64, float64) error { return h.err }

func (h *fakeHub) DemandRoute(_ context.Context, routeID, stopID int) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	h.demands = append(h.demands, [2]int{routeID, stopID})
	h.mu.Unlock()
	return nil
}

func (h *fakeHub) SendFeedback(_ context.Context, email, message string) error {
	h.mu.Lock()
	h.feedback = append(h.feedback, [2]string{email, message})
	h.mu.Unlock()
	return nil
}

type fakeForm struct {
	email, message string
	err            error
}

func (f *fakeForm) Submit(_ context.Context, email, message string) error {
	f.email, f.message = email, message
	return f.err
}

type fixture struct {
	status *fakeStatus
	hub    *fakeHub
	form   *fakeForm
	bus    *events.Bus
	srv    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		status: &fakeStatus{s: transit.Connected},
		hub:    &fakeHub{},
		form:   &fakeForm{},
		bus:    events.NewBus(nil),
	}
	view := mapview.Mount(context.Background(), f.hub, f.bus, nil)
	t.Cleanup(view.Close)
	f.srv = NewRouter(Deps{
		Status:   f.status,
		View:     view,
		Feedback: f.form,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "connected", h.Hub)

	f.status.s = transit.Reconnecting
	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestStopsAndRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/stops", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stops":[],"count":0}`, rec.Body.String())

	f.bus.Publish(events.StopsUpdated{Stops: []transit.BusStop{{StopID: 4, StopName: "Bridge", Latitude: 41.1, Longitude: 44.6}}})
	f.bus.Publish(events.RouteUpdated{Points: []transit.RoutePoint{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}}})

	rec = f.do(http.MethodGet, "/api/stops", "")
	var stops StopsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stops))
	assert.Equal(t, 1, stops.Count)
	assert.Equal(t, "Bridge", stops.Stops[0].StopName)

	rec = f.do(http.MethodGet, "/api/route", "")
	var route RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.True(t, route.Drawable)
	assert.Len(t, route.Points, 2)

	rec = f.do(http.MethodDelete, "/api/route", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/route", "")
	assert.JSONEq(t, `{"points":[],"drawable":false}`, rec.Body.String())
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/stops/refresh", "").Code)

	f.hub.err = &hub.NotConnectedError{Target: hub.CmdGetStops}
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/stops/refresh", "").Code)

	f.hub.err = &hub.InvocationError{Target: hub.CmdGetStops, Err: errors.New("boom")}
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodPost, "/api/stops/refresh", "").Code)
}

func TestDemandRoute(t *testing.T) {
	f := newFixture(t)
	f.bus.Publish(events.StopsUpdated{Stops: []transit.BusStop{{StopID: 4}}})

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/stops/x/routes/3", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/stops/9/routes/3", "").Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/stops/4/routes/3", "").Code)
	assert.Equal(t, [][2]int{{3, 4}}, f.hub.demands)
}

func TestDemandRoute_ConcurrentRequestsKeepTheirStop(t *testing.T) {
	f := newFixture(t)
	const n = 50
	stops := make([]transit.BusStop, n)
	for i := range stops {
		stops[i] = transit.BusStop{StopID: i + 1}
	}
	f.bus.Publish(events.StopsUpdated{Stops: stops})

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rec := f.do(http.MethodPost, fmt.Sprintf("/api/stops/%d/routes/%d", id, id), "")
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}(i)
	}
	wg.Wait()

	require.Len(t, f.hub.demands, n)
	for _, d := range f.hub.demands {
		assert.Equal(t, d[0], d[1], "route demanded for another request's stop")
	}
}

func TestFeedback_ConcurrentSubmissionsKeepTheirFields(t *testing.T) {
	h := &fakeHub{}
	view := mapview.Mount(context.Background(), h, events.NewBus(nil), nil)
	t.Cleanup(view.Close)
	srv := NewRouter(Deps{
		Status:   &fakeStatus{s: transit.Connected},
		View:     view,
		Feedback: support.Open(h, nil),
	})
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"email":"u%d@example.com","message":"m%d"}`, i, i)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body)))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}(i)
	}
	wg.Wait()

	require.Len(t, h.feedback, n)
	for _, fb := range h.feedback {
		assert.Equal(t, "u"+strings.TrimPrefix(fb[1], "m")+"@example.com", fb[0], "message sent with another request's email")
	}
}

func TestFeedback(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/feedback", "{").Code)

	rec := f.do(http.MethodPost, "/api/feedback", `{"email":"me@example.com","message":"hi"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "me@example.com", f.form.email)
	assert.Equal(t, "hi", f.form.message)

	f.form.err = &hub.NotConnectedError{Target: hub.CmdGetFeedback}
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/feedback", `{"message":"hi"}`).Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/stops", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
