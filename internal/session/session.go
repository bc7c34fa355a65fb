package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sinulogmap/internal/directions"
	"sinulogmap/internal/geo"
	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/search"
	"sinulogmap/internal/venue"
)

var (
	ErrUnknownDate  = errors.New("unknown schedule date")
	ErrUnknownEvent = errors.New("unknown event")
	// ErrStale is returned when a geolocation result belongs to a request
	// the session has already moved past. Callers drop it.
	ErrStale = errors.New("stale result")
)

// Messages shown inline when directions cannot be computed.
const (
	MsgDirectionsFailed = "Could not calculate directions. Please try again."
	MsgMapsUnavailable  = "Maps service is not available"
)

// Mode is the list/map presentation the session is in.
type Mode string

const (
	ModeBrowse Mode = "browse"
	ModeSearch Mode = "search"
	ModeEvent  Mode = "event"
)

// LocatePhase tracks the geolocation request state machine.
type LocatePhase string

const (
	LocateIdle       LocatePhase = "idle"
	LocateRequesting LocatePhase = "requesting"
	LocateResolved   LocatePhase = "resolved"
	LocateErrored    LocatePhase = "errored"
)

// Outcome reports what RequestDirections did.
type Outcome string

const (
	OutcomeRouted       Outcome = "routed"
	OutcomeNeedLocation Outcome = "need_location"
	OutcomeBusy         Outcome = "busy"
	OutcomeFailed       Outcome = "failed"
	OutcomeStale        Outcome = "stale"
)

// Ticket identifies one geolocation request.
type Ticket uint64

// State is a point-in-time copy of a session.
type State struct {
	Mode              Mode              `json:"mode"`
	SelectedDate      string            `json:"selected_date"`
	SelectedEvent     *model.EventRef   `json:"selected_event,omitempty"`
	SelectedLocation  *model.Location   `json:"selected_location,omitempty"`
	SearchQuery       string            `json:"search_query"`
	UserLocation      *geo.Position     `json:"user_location,omitempty"`
	Directions        *directions.Route `json:"directions,omitempty"`
	// FitRoute is set when a route has just arrived and the camera should
	// frame it. Any later selection hands the camera back.
	FitRoute          bool              `json:"fit_route"`
	LocatePhase       LocatePhase       `json:"locate_phase"`
	LocateTicket      Ticket            `json:"locate_ticket"`
	LoadingDirections bool              `json:"loading_directions"`
	LocationError     string            `json:"location_error,omitempty"`
}

// Locating reports whether a position request is outstanding.
func (s State) Locating() bool {
	return s.LocatePhase == LocateRequesting
}

func (s State) clone() State {
	out := s
	if s.SelectedEvent != nil {
		ref := *s.SelectedEvent
		out.SelectedEvent = &ref
	}
	if s.SelectedLocation != nil {
		loc := *s.SelectedLocation
		out.SelectedLocation = &loc
	}
	if s.UserLocation != nil {
		pos := *s.UserLocation
		out.UserLocation = &pos
	}
	out.Directions = s.Directions.Clone()
	return out
}

// Options configures new sessions.
type Options struct {
	DefaultDate string
	TravelMode  directions.TravelMode
}

// Session is one viewer's selection, search, geolocation and directions
// state. Every transition runs under mu; only the directions call itself
// runs unlocked.
type Session struct {
	id    string
	store *schedule.Store
	dir   *venue.Directory
	opts  Options

	mu       sync.Mutex
	st       State
	routeSeq uint64
	lastSeen time.Time
}

// New creates a session browsing the default date.
func New(id string, store *schedule.Store, dir *venue.Directory, opts Options) *Session {
	if opts.TravelMode == "" {
		opts.TravelMode = directions.Driving
	}
	return &Session{
		id:    id,
		store: store,
		dir:   dir,
		opts:  opts,
		st: State{
			Mode:         ModeBrowse,
			SelectedDate: store.DefaultDate(opts.DefaultDate),
			LocatePhase:  LocateIdle,
		},
		lastSeen: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SelectDate switches to browsing date, clearing the selected event,
// focused location and search text.
func (s *Session) SelectDate(date string) error {
	if !s.store.HasDate(date) {
		return fmt.Errorf("%w: %q", ErrUnknownDate, date)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SelectedDate = date
	s.st.SelectedEvent = nil
	s.st.SelectedLocation = nil
	s.st.SearchQuery = ""
	s.st.Mode = ModeBrowse
	s.st.FitRoute = false
	return nil
}

// SetQuery updates the search text. A non-blank query enters search mode;
// clearing it falls back to the event or browse mode.
func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SearchQuery = q
	switch {
	case search.Active(q):
		s.st.Mode = ModeSearch
	case s.st.SelectedEvent != nil:
		s.st.Mode = ModeEvent
	default:
		s.st.Mode = ModeBrowse
	}
}

// SelectEvent highlights an event from either list. The session moves to
// the event's date and focuses its first resolved location, if any.
func (s *Session) SelectEvent(ref model.EventRef) error {
	ev, ok := s.store.Event(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ref)
	}
	locs := s.dir.EventLocations(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SelectedDate = ref.Date
	s.st.SelectedEvent = &ref
	s.st.Mode = ModeEvent
	s.st.FitRoute = false
	if len(locs) > 0 {
		first := locs[0]
		s.st.SelectedLocation = &first
	}
	return nil
}

// SelectMarker focuses a venue without touching the selected event.
func (s *Session) SelectMarker(loc model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SelectedLocation = &loc
	s.st.FitRoute = false
}

// CloseInfo dismisses the info overlay.
func (s *Session) CloseInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SelectedLocation = nil
}

// BeginLocate starts a position request. It returns false, with the ticket
// already outstanding, when one is in flight.
func (s *Session) BeginLocate() (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocateLocked()
}

func (s *Session) beginLocateLocked() (Ticket, bool) {
	if s.st.LocatePhase == LocateRequesting {
		return s.st.LocateTicket, false
	}
	s.st.LocateTicket++
	s.st.LocatePhase = LocateRequesting
	s.st.LocationError = ""
	return s.st.LocateTicket, true
}

// ResolveLocate records the position for ticket t.
func (s *Session) ResolveLocate(t Ticket, pos geo.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkTicketLocked(t); err != nil {
		return err
	}
	s.st.UserLocation = &pos
	s.st.LocatePhase = LocateResolved
	return nil
}

// FailLocate records a classified failure for ticket t.
func (s *Session) FailLocate(t Ticket, kind geo.ErrorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkTicketLocked(t); err != nil {
		return err
	}
	s.st.LocatePhase = LocateErrored
	s.st.LocationError = kind.Message()
	return nil
}

func (s *Session) checkTicketLocked(t Ticket) error {
	if s.st.LocatePhase != LocateRequesting || t != s.st.LocateTicket {
		return fmt.Errorf("%w: ticket %d", ErrStale, t)
	}
	return nil
}

// Locate runs a full position request against a Locator. It is used where
// the host capability is reachable from the server (tests, CLI origin).
func (s *Session) Locate(ctx context.Context, l geo.Locator, opts geo.Options) error {
	t, started := s.BeginLocate()
	if !started {
		return nil
	}
	pos, err := l.Locate(ctx, opts)
	if err != nil {
		ferr := s.FailLocate(t, geo.KindOf(err))
		if errors.Is(ferr, ErrStale) {
			return nil
		}
		return err
	}
	if err := s.ResolveLocate(t, pos); err != nil && !errors.Is(err, ErrStale) {
		return err
	}
	return nil
}

// RequestDirections routes from the user's position to dest. Without a
// known position it starts a position request instead and sends nothing.
// On failure the previous route is kept and an inline message is set.
func (s *Session) RequestDirections(ctx context.Context, dest model.Location, r directions.Router) (Outcome, error) {
	s.mu.Lock()
	if s.st.UserLocation == nil {
		s.beginLocateLocked()
		s.mu.Unlock()
		return OutcomeNeedLocation, nil
	}
	if s.st.LoadingDirections {
		s.mu.Unlock()
		return OutcomeBusy, nil
	}
	s.st.LocationError = ""
	s.st.LoadingDirections = true
	s.routeSeq++
	seq := s.routeSeq
	req := directions.Request{
		Origin:      s.st.UserLocation.LatLng,
		Destination: dest.LatLng(),
		Mode:        s.opts.TravelMode,
		Key:         s.id,
	}
	s.mu.Unlock()

	route, err := r.Route(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.routeSeq {
		appLog.Debug("dropping late directions result", "session", s.id, "seq", seq)
		return OutcomeStale, nil
	}
	s.st.LoadingDirections = false
	if err != nil {
		if errors.Is(err, directions.ErrMissingKey) {
			s.st.LocationError = MsgMapsUnavailable
		} else {
			s.st.LocationError = MsgDirectionsFailed
		}
		appLog.Error("directions failed", err, "session", s.id, "destination", dest.Name)
		return OutcomeFailed, err
	}
	s.st.Directions = route
	s.st.FitRoute = true
	return OutcomeRouted, nil
}

// ClearDirections drops the displayed route. Any in-flight request is
// abandoned and its result ignored.
func (s *Session) ClearDirections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Directions = nil
	s.st.FitRoute = false
	s.st.LocationError = ""
	s.st.LoadingDirections = false
	s.routeSeq++
}
