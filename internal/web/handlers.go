package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sinulogmap/internal/geo"
	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/search"
	"sinulogmap/internal/session"
	"sinulogmap/internal/view"
)

// stateResponse is returned by every session mutation.
type stateResponse struct {
	View    view.MapView    `json:"view"`
	Outcome session.Outcome `json:"outcome,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// session resolves the caller's session from its cookie, issuing a new
// one when the cookie is missing or unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
		s.metrics.Sessions(s.sessions.Len())
	}
	return sess, nil
}

func (s *Server) project(sess *session.Session) view.MapView {
	return view.Project(sess.Snapshot(), s.store, s.dir, s.viewCfg)
}

func (s *Server) respond(w http.ResponseWriter, sess *session.Session, outcome session.Outcome) {
	writeJSON(w, http.StatusOK, stateResponse{View: s.project(sess), Outcome: outcome})
}

// mutate runs fn against the caller's session and answers with the new view.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, err := s.session(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := fn(sess); err != nil {
		writeDomainError(w, err)
		return
	}
	s.respond(w, sess, "")
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dates":  s.store.Dates(),
		"events": s.store.Buckets(),
	})
}

func (s *Server) handleVenues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.AllVenues(s.store))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results := search.Run(s.store, q)
	if search.Active(q) {
		s.metrics.Search()
	}
	if results == nil {
		results = []model.DatedEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"summary": fmt.Sprintf("%d results found across all dates", len(results)),
		"results": results,
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.respond(w, sess, "")
}

type dateRequest struct {
	Date string `json:"date" validate:"required"`
}

func (s *Server) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SelectDate(req.Date)
	})
}

type queryRequest struct {
	Query string `json:"query" validate:"max=200"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if search.Active(req.Query) {
		s.metrics.Search()
	}
	s.mutate(w, r, func(sess *session.Session) error {
		sess.SetQuery(req.Query)
		return nil
	})
}

type eventRequest struct {
	Date  string `json:"date" validate:"required"`
	Index int    `json:"index" validate:"gte=0"`
}

func (s *Server) handleSelectEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SelectEvent(model.EventRef{Date: req.Date, Index: req.Index})
	})
}

type markerRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleSelectMarker(w http.ResponseWriter, r *http.Request) {
	var req markerRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	loc, ok := s.dir.ByName(req.Name)
	if !ok {
		writeDomainError(w, fmt.Errorf("%w: %q", errUnknownVenue, req.Name))
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		sess.SelectMarker(loc)
		return nil
	})
}

func (s *Server) handleCloseInfo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		sess.CloseInfo()
		return nil
	})
}

func (s *Server) handleLocateRequest(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		if _, started := sess.BeginLocate(); !started {
			appLog.Debug("position request already in flight", "session", sess.ID())
		}
		return nil
	})
}

// locationReport is what the browser sends back for a position request.
// A non-zero ErrorCode or a non-empty Error marks a failure.
type locationReport struct {
	Ticket    session.Ticket `json:"ticket" validate:"required"`
	Lat       float64        `json:"lat"`
	Lng       float64        `json:"lng"`
	Accuracy  float64        `json:"accuracy"`
	ErrorCode int            `json:"error_code" validate:"gte=0"`
	Error     string         `json:"error"`
}

func (r locationReport) failed() (geo.ErrorKind, bool) {
	switch {
	case r.Error != "":
		return geo.ParseKind(r.Error), true
	case r.ErrorCode != 0:
		return geo.KindFromCode(r.ErrorCode), true
	default:
		return "", false
	}
}

func (s *Server) handleLocateResult(w http.ResponseWriter, r *http.Request) {
	var req locationReport
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := s.session(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	kind, failed := req.failed()
	if failed {
		err = sess.FailLocate(req.Ticket, kind)
	} else {
		err = sess.ResolveLocate(req.Ticket, geo.Position{
			LatLng:   model.LatLng{Lat: req.Lat, Lng: req.Lng},
			Accuracy: req.Accuracy,
		})
	}
	switch {
	case errors.Is(err, session.ErrStale):
		appLog.Debug("stale position report ignored", "session", sess.ID(), "ticket", req.Ticket)
		s.respond(w, sess, session.OutcomeStale)
		return
	case err != nil:
		writeDomainError(w, err)
		return
	}
	if failed {
		s.metrics.Geolocation(string(kind))
	} else {
		s.metrics.Geolocation("ok")
	}
	s.respond(w, sess, "")
}

type directionsRequest struct {
	Name string `json:"name"`
}

// handleDirections routes to the named venue, or to the focused location
// when no name is given. Provider failures are reported inline in the
// view; the response stays 200.
func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	var req directionsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := s.session(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dest model.Location
	if name := strings.TrimSpace(req.Name); name != "" {
		loc, ok := s.dir.ByName(name)
		if !ok {
			writeDomainError(w, fmt.Errorf("%w: %q", errUnknownVenue, name))
			return
		}
		dest = loc
	} else if focused := sess.Snapshot().SelectedLocation; focused != nil {
		dest = *focused
	} else {
		writeDomainError(w, fmt.Errorf("%w: no destination selected", errBadRequest))
		return
	}

	start := time.Now()
	outcome, err := sess.RequestDirections(r.Context(), dest, s.router)
	s.metrics.Directions(string(outcome), time.Since(start))

	resp := stateResponse{View: s.project(sess), Outcome: outcome}
	if err != nil {
		resp.Error = sess.Snapshot().LocationError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearDirections(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		sess.ClearDirections()
		return nil
	})
}

func writeCalendarHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	writeCalendarHeaders(w, "sinulog.ics")
	if err := s.exporter.WriteAll(w); err != nil {
		appLog.Error("calendar export failed", err)
	}
}

func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		writeDomainError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	ref, err := model.ParseEventRef(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := s.store.Event(ref); !ok {
		writeDomainError(w, fmt.Errorf("%w: %s", session.ErrUnknownEvent, ref))
		return
	}
	writeCalendarHeaders(w, fmt.Sprintf("sinulog-%s-%d.ics", ref.Date, ref.Index))
	if err := s.exporter.WriteEvent(w, ref); err != nil {
		appLog.Error("event export failed", err, "ref", ref.String())
	}
}
