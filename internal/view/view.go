package view

import (
	"fmt"
	"strings"

	"sinulogmap/internal/directions"
	"sinulogmap/internal/geo"
	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/search"
	"sinulogmap/internal/session"
	"sinulogmap/internal/venue"
)

// Marker icons and route styling used by the browser renderer.
const (
	IconSelected = "https://maps.google.com/mapfiles/ms/icons/red-dot.png"
	IconVenue    = "https://maps.google.com/mapfiles/ms/icons/blue-dot.png"
	IconUser     = "https://maps.google.com/mapfiles/ms/icons/green-dot.png"

	SizeSelected = 40
	SizeVenue    = 30
	SizeUser     = 40

	AnimationDrop = "DROP"

	RouteColor   = "#1e3a8a"
	RouteWeight  = 5
	RouteOpacity = 0.8
)

// Button labels for the info overlay.
const (
	LabelGetDirections     = "Get Directions"
	LabelGettingDirections = "Getting directions..."
	LabelGettingLocation   = "Getting your location..."
	LabelClearDirections   = "Clear Directions"
)

// LoadErrorMessage replaces the map when the maps service cannot be loaded.
const LoadErrorMessage = "Error loading maps"

const (
	DefaultWideZoom  = 13
	DefaultFocusZoom = 16
)

// Config holds the static inputs of a projection.
type Config struct {
	Center        model.LatLng
	WideZoom      int
	FocusZoom     int
	MapsAvailable bool
	Geolocation   geo.Options
}

func (c Config) normalized() Config {
	if !c.Center.Valid() || (c.Center == model.LatLng{}) {
		c.Center = venue.DefaultCenter
	}
	if c.WideZoom <= 0 {
		c.WideZoom = DefaultWideZoom
	}
	if c.FocusZoom <= 0 {
		c.FocusZoom = DefaultFocusZoom
	}
	return c
}

// MapView is everything the browser needs to draw one frame.
type MapView struct {
	LoadError string `json:"load_error,omitempty"`

	Center    model.LatLng  `json:"center"`
	Zoom      int           `json:"zoom"`
	FitBounds *model.Bounds `json:"fit_bounds,omitempty"`

	Markers []Marker   `json:"markers"`
	User    *Marker    `json:"user,omitempty"`
	Route   *RouteLine `json:"route,omitempty"`
	Info    *Info      `json:"info,omitempty"`

	// Geolocate is set while the server waits for the browser to report
	// a position for Ticket.
	Geolocate *GeolocateRequest `json:"geolocate,omitempty"`

	List List `json:"list"`
}

type Marker struct {
	ID        string         `json:"id"`
	Location  model.Location `json:"location"`
	Selected  bool           `json:"selected"`
	Icon      string         `json:"icon"`
	Size      int            `json:"size"`
	Animation string         `json:"animation,omitempty"`
}

type RouteLine struct {
	Path          []model.LatLng `json:"path"`
	Encoded       string         `json:"encoded,omitempty"`
	StrokeColor   string         `json:"stroke_color"`
	StrokeWeight  int            `json:"stroke_weight"`
	StrokeOpacity float64        `json:"stroke_opacity"`
	Summary       string         `json:"summary,omitempty"`
	Distance      string         `json:"distance,omitempty"`
	Duration      string         `json:"duration,omitempty"`
}

// Info is the overlay anchored at the focused location. The event block is
// only filled when the location belongs to the selected event.
type Info struct {
	Location model.Location `json:"location"`
	// MarkerID names the marker the overlay opens on; empty when the
	// location has no marker in this frame.
	MarkerID string         `json:"marker_id,omitempty"`

	ShowEvent bool            `json:"show_event"`
	Ref       *model.EventRef `json:"ref,omitempty"`
	EventName string          `json:"event_name,omitempty"`
	Time      string          `json:"time,omitempty"`
	Note      string          `json:"note,omitempty"`
	Error     string          `json:"error,omitempty"`

	Button         string `json:"button,omitempty"`
	ButtonDisabled bool   `json:"button_disabled"`
	CanClear       bool   `json:"can_clear"`
}

type GeolocateRequest struct {
	Ticket       session.Ticket `json:"ticket"`
	HighAccuracy bool           `json:"high_accuracy"`
	TimeoutMS    int64          `json:"timeout_ms"`
	MaximumAgeMS int64          `json:"maximum_age_ms"`
}

// List is the left-hand panel: date tabs plus either the date's events or
// the search results.
type List struct {
	Dates        []string     `json:"dates"`
	SelectedDate string       `json:"selected_date"`
	Mode         session.Mode `json:"mode"`
	Query        string       `json:"query"`
	Searching    bool         `json:"searching"`
	Summary      string       `json:"summary"`
	Rows         []Row        `json:"rows"`
}

type Row struct {
	Ref      model.EventRef `json:"ref"`
	RefKey   string         `json:"ref_key"`
	Event    model.Event    `json:"event"`
	Venues   string         `json:"venue_line"`
	Selected bool           `json:"selected"`
}

// Project derives the map and list presentation from a session snapshot.
// It has no side effects.
func Project(st session.State, store *schedule.Store, dir *venue.Directory, cfg Config) MapView {
	cfg = cfg.normalized()

	v := MapView{
		Center: cfg.Center,
		Zoom:   cfg.WideZoom,
		List:   projectList(st, store),
	}
	if !cfg.MapsAvailable {
		v.LoadError = LoadErrorMessage
	}
	if st.SelectedLocation != nil {
		v.Center = st.SelectedLocation.LatLng()
		v.Zoom = cfg.FocusZoom
	}

	var (
		selected  model.Event
		hasEvent  bool
		eventLocs []model.Location
	)
	if st.SelectedEvent != nil {
		selected, hasEvent = store.Event(*st.SelectedEvent)
		if hasEvent {
			eventLocs = dir.EventLocations(selected)
		}
	}

	if st.Directions != nil {
		if st.FitRoute {
			b := st.Directions.Bounds
			v.FitBounds = &b
		}
		v.Route = projectRoute(st.Directions)
	} else {
		var locs []model.Location
		if hasEvent {
			locs = eventLocs
		} else {
			locs = dir.AllVenues(store)
		}
		v.Markers = make([]Marker, 0, len(locs))
		for _, loc := range locs {
			v.Markers = append(v.Markers, venueMarker(loc, hasEvent && venue.Contains(eventLocs, loc)))
		}
	}

	if st.UserLocation != nil {
		you := model.Location{Name: "You", Lat: st.UserLocation.Lat, Lng: st.UserLocation.Lng}
		v.User = &Marker{ID: you.Key(), Location: you, Icon: IconUser, Size: SizeUser}
	}

	if st.SelectedLocation != nil {
		v.Info = projectInfo(st, *st.SelectedLocation, selected, hasEvent && venue.Contains(eventLocs, *st.SelectedLocation))
		if id := st.SelectedLocation.Key(); hasMarker(v.Markers, id) {
			v.Info.MarkerID = id
		}
	}

	if st.Locating() {
		v.Geolocate = &GeolocateRequest{
			Ticket:       st.LocateTicket,
			HighAccuracy: cfg.Geolocation.HighAccuracy,
			TimeoutMS:    cfg.Geolocation.Timeout.Milliseconds(),
			MaximumAgeMS: cfg.Geolocation.MaximumAge.Milliseconds(),
		}
	}
	return v
}

func venueMarker(loc model.Location, selected bool) Marker {
	if selected {
		return Marker{ID: loc.Key(), Location: loc, Selected: true, Icon: IconSelected, Size: SizeSelected, Animation: AnimationDrop}
	}
	return Marker{ID: loc.Key(), Location: loc, Icon: IconVenue, Size: SizeVenue}
}

func hasMarker(markers []Marker, id string) bool {
	for _, m := range markers {
		if m.ID == id {
			return true
		}
	}
	return false
}

func projectRoute(r *directions.Route) *RouteLine {
	path := make([]model.LatLng, len(r.Polyline))
	copy(path, r.Polyline)
	return &RouteLine{
		Path:          path,
		Encoded:       r.EncodedPolyline,
		StrokeColor:   RouteColor,
		StrokeWeight:  RouteWeight,
		StrokeOpacity: RouteOpacity,
		Summary:       r.Summary,
		Distance:      r.DistanceText,
		Duration:      r.DurationText,
	}
}

func projectInfo(st session.State, loc model.Location, ev model.Event, ofEvent bool) *Info {
	info := &Info{Location: loc}
	if !ofEvent {
		return info
	}
	ref := *st.SelectedEvent
	info.ShowEvent = true
	info.Ref = &ref
	info.EventName = ev.Event
	info.Time = ev.Time
	info.Note = ev.Note
	info.Error = st.LocationError
	info.Button = buttonLabel(st)
	info.ButtonDisabled = st.LoadingDirections || st.Locating()
	info.CanClear = st.Directions != nil
	return info
}

func buttonLabel(st session.State) string {
	switch {
	case st.LoadingDirections:
		return LabelGettingDirections
	case st.Locating():
		return LabelGettingLocation
	default:
		return LabelGetDirections
	}
}

func projectList(st session.State, store *schedule.Store) List {
	l := List{
		Dates:        store.Dates(),
		SelectedDate: st.SelectedDate,
		Mode:         st.Mode,
		Query:        st.SearchQuery,
		Searching:    search.Active(st.SearchQuery),
	}

	var dated []model.DatedEvent
	if l.Searching {
		dated = search.Run(store, st.SearchQuery)
		l.Summary = fmt.Sprintf("%d results found across all dates", len(dated))
	} else {
		dated = store.Dated(st.SelectedDate)
		l.Summary = fmt.Sprintf("%d events on %s", len(dated), st.SelectedDate)
	}

	l.Rows = make([]Row, 0, len(dated))
	for _, d := range dated {
		l.Rows = append(l.Rows, Row{
			Ref:      d.Ref,
			RefKey:   d.Ref.String(),
			Event:    d.Event,
			Venues:   VenueLine(d.Event),
			Selected: st.SelectedEvent != nil && *st.SelectedEvent == d.Ref,
		})
	}
	return l
}

// VenueLine joins an event's primary venue and extra venues for the list.
func VenueLine(ev model.Event) string {
	return strings.Join(ev.VenueNames(), ", ")
}
