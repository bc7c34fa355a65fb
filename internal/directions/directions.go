package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/ratelimit"
)

// DefaultEndpoint is the Google Maps Directions web service.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api/directions/json"

// TravelMode selects how the route is computed.
type TravelMode string

const (
	Driving   TravelMode = "driving"
	Walking   TravelMode = "walking"
	Bicycling TravelMode = "bicycling"
	Transit   TravelMode = "transit"
)

// ParseTravelMode returns the mode for s, defaulting to Driving.
func ParseTravelMode(s string) TravelMode {
	switch m := TravelMode(strings.ToLower(strings.TrimSpace(s))); m {
	case Walking, Bicycling, Transit:
		return m
	default:
		return Driving
	}
}

var (
	// ErrMissingKey means no maps key was configured.
	ErrMissingKey = errors.New("maps service is not available")
	// ErrNoRoute means the provider answered OK but without routes.
	ErrNoRoute = errors.New("no route returned")
	// ErrRateLimited means the caller exceeded its directions budget.
	ErrRateLimited = errors.New("directions rate limit exceeded")
)

// ProviderError is a non-OK status returned by the directions service.
type ProviderError struct {
	Status  string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return "directions: " + e.Status + ": " + e.Message
	}
	return "directions: " + e.Status
}

// Request is a single origin -> destination query. Key identifies the
// caller for throttling and is never sent to the provider.
type Request struct {
	Origin      model.LatLng
	Destination model.LatLng
	Mode        TravelMode
	Key         string
}

// Route is a computed path between two points.
type Route struct {
	Bounds          model.Bounds   `json:"bounds"`
	Polyline        []model.LatLng `json:"polyline"`
	EncodedPolyline string         `json:"encoded_polyline"`
	Summary         string         `json:"summary,omitempty"`
	DistanceMeters  int            `json:"distance_meters"`
	DurationSeconds int            `json:"duration_seconds"`
	DistanceText    string         `json:"distance_text,omitempty"`
	DurationText    string         `json:"duration_text,omitempty"`
	Mode            TravelMode     `json:"mode"`
}

// Clone returns a deep copy.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	out.Polyline = append([]model.LatLng(nil), r.Polyline...)
	return &out
}

// Router computes routes.
type Router interface {
	Route(ctx context.Context, req Request) (*Route, error)
}

// Client calls the Directions web service over HTTP.
type Client struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewClient creates a Client. timeout <= 0 leaves requests bounded only by
// the caller's context.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

type apiLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type apiValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Summary string `json:"summary"`
		Bounds  struct {
			NorthEast apiLatLng `json:"northeast"`
			SouthWest apiLatLng `json:"southwest"`
		} `json:"bounds"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance apiValue `json:"distance"`
			Duration apiValue `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route requests a route for req.
func (c *Client) Route(ctx context.Context, req Request) (*Route, error) {
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}
	if req.Mode == "" {
		req.Mode = Driving
	}

	q := url.Values{}
	q.Set("origin", req.Origin.String())
	q.Set("destination", req.Destination.String())
	q.Set("mode", string(req.Mode))
	q.Set("key", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	appLog.Debug("directions request", "origin", req.Origin.String(), "destination", req.Destination.String(), "mode", req.Mode)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("directions: %w", redactErr(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ProviderError{Status: resp.Status}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("directions: decode response: %w", err)
	}
	if body.Status != "OK" {
		return nil, &ProviderError{Status: body.Status, Message: body.ErrorMessage}
	}
	if len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}

	r := body.Routes[0]
	out := &Route{
		Bounds: model.Bounds{
			NorthEast: model.LatLng{Lat: r.Bounds.NorthEast.Lat, Lng: r.Bounds.NorthEast.Lng},
			SouthWest: model.LatLng{Lat: r.Bounds.SouthWest.Lat, Lng: r.Bounds.SouthWest.Lng},
		},
		EncodedPolyline: r.OverviewPolyline.Points,
		Summary:         r.Summary,
		Mode:            req.Mode,
	}
	out.Polyline, err = DecodePolyline(r.OverviewPolyline.Points)
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	for _, leg := range r.Legs {
		out.DistanceMeters += leg.Distance.Value
		out.DurationSeconds += leg.Duration.Value
	}
	if len(r.Legs) == 1 {
		out.DistanceText = r.Legs[0].Distance.Text
		out.DurationText = r.Legs[0].Duration.Text
	}

	appLog.Info("directions resolved",
		"distance_m", out.DistanceMeters,
		"duration_s", out.DurationSeconds,
		"points", len(out.Polyline),
		"elapsed", time.Since(start),
	)
	return out, nil
}

// redactErr strips the API key from transport errors, which embed the URL.
func redactErr(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

// Throttled wraps a Router with a per-key token bucket.
type Throttled struct {
	Router  Router
	Limiter *ratelimit.Keyed
}

func (t Throttled) Route(ctx context.Context, req Request) (*Route, error) {
	if t.Limiter != nil && !t.Limiter.Allow(req.Key) {
		return nil, ErrRateLimited
	}
	return t.Router.Route(ctx, req)
}
