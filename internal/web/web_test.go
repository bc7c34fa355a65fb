package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinulogmap/internal/auth"
	"sinulogmap/internal/config"
	"sinulogmap/internal/directions"
	"sinulogmap/internal/ics"
	"sinulogmap/internal/metrics"
	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/session"
	"sinulogmap/internal/venue"
	"sinulogmap/internal/view"
)

type stubRouter struct {
	route *directions.Route
	err   error
	calls int
}

func (s *stubRouter) Route(_ context.Context, _ directions.Request) (*directions.Route, error) {
	s.calls++
	return s.route, s.err
}

var testRoute = &directions.Route{
	Bounds:   model.Bounds{NorthEast: model.LatLng{Lat: 10.32, Lng: 123.91}, SouthWest: model.LatLng{Lat: 10.29, Lng: 123.89}},
	Polyline: []model.LatLng{{Lat: 10.31, Lng: 123.89}, {Lat: 10.2947, Lng: 123.9016}},
	Summary:  "Osmeña Blvd",
}

type harness struct {
	srv    *httptest.Server
	client *http.Client
	router *stubRouter
	cfg    *config.Config
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	store, err := schedule.New(map[string][]model.Event{
		"2025-01-15": {
			{Event: "Opening Mass", Time: "6:00 AM", Venue: "Basilica del Sto. Nino", Note: "Bring candles"},
			{Event: "Art Fair", Time: "10:00 AM", Venue: "The Gallery, Ayala Center Cebu", Venues: []string{"SRP"}},
		},
		"2025-01-19": {
			{Event: "Grand Parade", Time: "7:00 AM - 5:00 PM", Venue: "Cebu City Sports Center"},
		},
	}, nil)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DefaultDate = "2025-01-15"
	cfg.MapsAPIKey = "test-key"
	if mutate != nil {
		mutate(cfg)
	}
	dir := venue.DefaultDirectory()
	router := &stubRouter{route: testRoute}
	s := NewServer(Deps{
		Config:   cfg,
		Store:    store,
		Dir:      dir,
		Sessions: session.NewManager(store, dir, session.Options{DefaultDate: cfg.DefaultDate}, time.Hour),
		Router:   router,
		Exporter: ics.NewExporter(store, dir, cfg.Location()),
		Metrics:  metrics.New(),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{srv: srv, client: &http.Client{Jar: jar}, router: router, cfg: cfg}
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) state(t *testing.T, method, path string, body any) stateResponse {
	t.Helper()
	resp := h.do(t, method, path, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestView_IssuesSessionCookie(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/api/view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	var out stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "2025-01-15", out.View.List.SelectedDate)
	assert.Equal(t, "2 events on 2025-01-15", out.View.List.Summary)
	assert.Empty(t, out.View.LoadError)

	again := h.do(t, http.MethodGet, "/api/view", nil)
	assert.Empty(t, again.Cookies(), "known session keeps its cookie")
}

func TestSelectDate(t *testing.T) {
	h := newHarness(t, nil)
	out := h.state(t, http.MethodPost, "/api/date", map[string]string{"date": "2025-01-19"})
	assert.Equal(t, "2025-01-19", out.View.List.SelectedDate)
	require.Len(t, out.View.List.Rows, 1)
	assert.Equal(t, "Grand Parade", out.View.List.Rows[0].Event.Event)

	resp := h.do(t, http.MethodPost, "/api/date", map[string]string{"date": "2030-01-01"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/date", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/date", map[string]string{"day": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields are rejected")
}

func TestQuery(t *testing.T) {
	h := newHarness(t, nil)
	out := h.state(t, http.MethodPost, "/api/query", map[string]string{"query": "PARADE"})
	assert.Equal(t, session.ModeSearch, out.View.List.Mode)
	assert.Equal(t, "1 results found across all dates", out.View.List.Summary)

	out = h.state(t, http.MethodPost, "/api/query", map[string]string{"query": "  "})
	assert.Equal(t, session.ModeBrowse, out.View.List.Mode)
}

func TestSelectEventAndDirections(t *testing.T) {
	h := newHarness(t, nil)

	out := h.state(t, http.MethodPost, "/api/event", model.EventRef{Date: "2025-01-15", Index: 0})
	require.NotNil(t, out.View.Info)
	assert.True(t, out.View.Info.ShowEvent)
	assert.Equal(t, view.LabelGetDirections, out.View.Info.Button)
	assert.Equal(t, view.DefaultFocusZoom, out.View.Zoom)

	// No position yet: the request only starts locating.
	out = h.state(t, http.MethodPost, "/api/directions", map[string]string{})
	assert.Equal(t, session.OutcomeNeedLocation, out.Outcome)
	require.NotNil(t, out.View.Geolocate)
	assert.Equal(t, view.LabelGettingLocation, out.View.Info.Button)
	assert.Zero(t, h.router.calls)

	ticket := out.View.Geolocate.Ticket
	out = h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": ticket, "lat": 10.31, "lng": 123.89})
	assert.Nil(t, out.View.Geolocate)
	require.NotNil(t, out.View.User)

	out = h.state(t, http.MethodPost, "/api/directions", map[string]string{})
	assert.Equal(t, session.OutcomeRouted, out.Outcome)
	require.NotNil(t, out.View.Route)
	assert.Empty(t, out.View.Markers)
	require.NotNil(t, out.View.FitBounds)
	assert.True(t, out.View.Info.CanClear)

	out = h.state(t, http.MethodDelete, "/api/directions", nil)
	assert.Nil(t, out.View.Route)
	assert.NotEmpty(t, out.View.Markers)
}

func TestDirections_LaterSelectionRecentres(t *testing.T) {
	h := newHarness(t, nil)
	out := h.state(t, http.MethodPost, "/api/location/request", nil)
	require.NotNil(t, out.View.Geolocate)
	h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": out.View.Geolocate.Ticket, "lat": 10.31, "lng": 123.89})
	h.state(t, http.MethodPost, "/api/event", model.EventRef{Date: "2025-01-15", Index: 0})

	out = h.state(t, http.MethodPost, "/api/directions", map[string]string{})
	require.Equal(t, session.OutcomeRouted, out.Outcome)
	require.NotNil(t, out.View.FitBounds)

	out = h.state(t, http.MethodPost, "/api/date", map[string]string{"date": "2025-01-19"})
	assert.Nil(t, out.View.FitBounds)
	assert.Equal(t, view.DefaultWideZoom, out.View.Zoom)
	assert.Equal(t, venue.DefaultCenter, out.View.Center)
	assert.NotNil(t, out.View.Route)

	out = h.state(t, http.MethodPost, "/api/directions", map[string]string{"name": "Basilica del Sto. Nino"})
	require.Equal(t, session.OutcomeRouted, out.Outcome)
	require.NotNil(t, out.View.FitBounds)

	out = h.state(t, http.MethodPost, "/api/event", model.EventRef{Date: "2025-01-19", Index: 0})
	assert.Nil(t, out.View.FitBounds)
	assert.Equal(t, view.DefaultFocusZoom, out.View.Zoom)
	assert.Equal(t, model.LatLng{Lat: 10.3033, Lng: 123.8989}, out.View.Center)
	assert.NotNil(t, out.View.Route)
}

func TestDirections_FailureIsInline(t *testing.T) {
	h := newHarness(t, nil)
	h.router.err = &directions.ProviderError{Status: "ZERO_RESULTS"}

	h.state(t, http.MethodPost, "/api/event", model.EventRef{Date: "2025-01-15", Index: 0})
	out := h.state(t, http.MethodPost, "/api/location/request", nil)
	require.NotNil(t, out.View.Geolocate)
	h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": out.View.Geolocate.Ticket, "lat": 10.31, "lng": 123.89})

	out = h.state(t, http.MethodPost, "/api/directions", map[string]string{"name": "Basilica del Sto. Nino"})
	assert.Equal(t, session.OutcomeFailed, out.Outcome)
	assert.Equal(t, session.MsgDirectionsFailed, out.Error)
	assert.Equal(t, session.MsgDirectionsFailed, out.View.Info.Error)
}

func TestDirections_NoDestination(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodPost, "/api/directions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/directions", map[string]string{"name": "Nowhere"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLocation_ErrorsAndStale(t *testing.T) {
	h := newHarness(t, nil)
	h.state(t, http.MethodPost, "/api/event", model.EventRef{Date: "2025-01-15", Index: 0})
	out := h.state(t, http.MethodPost, "/api/location/request", nil)
	ticket := out.View.Geolocate.Ticket

	out = h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": ticket, "error_code": 1})
	assert.Nil(t, out.View.Geolocate)
	assert.Contains(t, out.View.Info.Error, "enable location access")

	out = h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": ticket, "lat": 10.3, "lng": 123.9})
	assert.Equal(t, session.OutcomeStale, out.Outcome)
	assert.Nil(t, out.View.User)

	out = h.state(t, http.MethodPost, "/api/location/request", nil)
	resp := h.do(t, http.MethodPost, "/api/location", map[string]any{"ticket": out.View.Geolocate.Ticket, "lat": 95.0, "lng": 123.9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkerAndCloseInfo(t *testing.T) {
	h := newHarness(t, nil)
	out := h.state(t, http.MethodPost, "/api/marker", map[string]string{"name": "Basilica del Sto. Nino"})
	require.NotNil(t, out.View.Info)
	assert.False(t, out.View.Info.ShowEvent)

	out = h.state(t, http.MethodPost, "/api/info/close", nil)
	assert.Nil(t, out.View.Info)
	assert.Equal(t, view.DefaultWideZoom, out.View.Zoom)

	resp := h.do(t, http.MethodPost, "/api/marker", map[string]string{"name": "Nowhere"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadOnlyEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(t, http.MethodGet, "/api/search?q=mass", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found struct {
		Summary string             `json:"summary"`
		Results []model.DatedEvent `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	assert.Equal(t, "1 results found across all dates", found.Summary)

	resp = h.do(t, http.MethodGet, "/api/venues", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var venues []model.Location
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&venues))
	assert.NotEmpty(t, venues)

	resp = h.do(t, http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCalendarExport(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "SUMMARY:Grand Parade")

	resp = h.do(t, http.MethodGet, "/api/event/2025-01-19%231/ics", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/event/2025-01-19%230/ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "SUMMARY:Grand Parade")
	assert.NotContains(t, string(body), "Opening Mass")

	resp = h.do(t, http.MethodGet, "/api/event/garbage/ics", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIndexPage(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/?date=2025-01-19", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	assert.Contains(t, page, "window.SINULOG_VIEW")
	assert.Contains(t, page, `"selected_date":"2025-01-19"`)
	assert.Contains(t, page, "maps.googleapis.com/maps/api/js?key=test-key")

	resp = h.do(t, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexPage_MapLoadRequestsPosition(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(body), `"geolocate"`)

	resp = h.do(t, http.MethodGet, "/static/app.js", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	script, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(script), `api("POST", "/api/location/request")`)
	assert.NotContains(t, string(script), `api("POST", "/api/directions", { name: name })`)

	// What the map load hook sends on the same session.
	out := h.state(t, http.MethodPost, "/api/location/request", nil)
	require.NotNil(t, out.View.Geolocate)
	assert.Equal(t, session.Ticket(1), out.View.Geolocate.Ticket)
	assert.Equal(t, int64(5000), out.View.Geolocate.TimeoutMS)

	// A resolved position never triggers a directions call by itself.
	out = h.state(t, http.MethodPost, "/api/location", map[string]any{"ticket": 1, "lat": 10.31, "lng": 123.89})
	assert.Nil(t, out.View.Geolocate)
	assert.Nil(t, out.View.Route)
	assert.Zero(t, h.router.calls)

	require.Len(t, out.View.List.Rows, 2)
	assert.Equal(t, "The Gallery, Ayala Center Cebu, SRP", out.View.List.Rows[1].Venues)
}

func TestIndexPage_WithoutMapsKey(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MapsAPIKey = "" })
	resp := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), view.LoadErrorMessage)
	assert.NotContains(t, string(body), "maps/api/js")
}

func TestBasicAuth(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	h := newHarness(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: hash}
	})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", nil).StatusCode)

	resp := h.do(t, http.MethodGet, "/api/view", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/view", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "s3cret")
	ok, err := h.client.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodGet, "/api/view", nil)
	resp := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "sinulogmap_sessions 1")
}
