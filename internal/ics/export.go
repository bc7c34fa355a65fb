package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/venue"
)

// CalendarName is the X-WR-CALNAME of exported calendars.
const CalendarName = "Sinulog Festival"

// uidNamespace seeds the name-based UUIDs used as event UIDs.
var uidNamespace = uuid.MustParse("6f1c7f3e-5b8a-4c3e-9d2f-1a7e0c4b9e21")

// UID returns a stable identifier for an event: the same date, position
// and name always give the same UID.
func UID(ref model.EventRef, ev model.Event) string {
	return uuid.NewSHA1(uidNamespace, []byte(ref.String()+"|"+ev.Event)).String() + "@sinulogmap"
}

// Exporter renders schedule events as iCalendar documents.
type Exporter struct {
	store *schedule.Store
	dir   *venue.Directory
	loc   *time.Location
	now   func() time.Time
}

// NewExporter creates an Exporter that interprets event times in loc.
func NewExporter(store *schedule.Store, dir *venue.Directory, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{store: store, dir: dir, loc: loc, now: time.Now}
}

func (e *Exporter) newCalendar() *ical.Calendar {
	cal := ical.NewCalendarFor("sinulogmap")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(CalendarName)
	cal.SetXWRTimezone(e.loc.String())
	return cal
}

// Calendar builds a calendar of the whole schedule.
func (e *Exporter) Calendar() *ical.Calendar {
	cal := e.newCalendar()
	stamp := e.now()
	n := 0
	e.store.Each(func(ref model.EventRef, ev model.Event) bool {
		if e.addEvent(cal, ref, ev, stamp) {
			n++
		}
		return true
	})
	appLog.Debug("ics export built", "events", n)
	return cal
}

// EventCalendar builds a calendar holding a single event.
func (e *Exporter) EventCalendar(ref model.EventRef) (*ical.Calendar, bool) {
	ev, ok := e.store.Event(ref)
	if !ok {
		return nil, false
	}
	cal := e.newCalendar()
	if !e.addEvent(cal, ref, ev, e.now()) {
		return nil, false
	}
	return cal, true
}

// WriteAll serialises the whole schedule to w.
func (e *Exporter) WriteAll(w io.Writer) error {
	return e.Calendar().SerializeTo(w)
}

// WriteEvent serialises one event to w.
func (e *Exporter) WriteEvent(w io.Writer, ref model.EventRef) error {
	cal, ok := e.EventCalendar(ref)
	if !ok {
		return fmt.Errorf("unknown event %s", ref)
	}
	return cal.SerializeTo(w)
}

func (e *Exporter) addEvent(cal *ical.Calendar, ref model.EventRef, ev model.Event, stamp time.Time) bool {
	span, err := ParseSpan(ref.Date, ev.Time, e.loc)
	if err != nil {
		appLog.Warn("ics export skipped event", "ref", ref.String(), "err", err)
		return false
	}

	vev := cal.AddEvent(UID(ref, ev))
	vev.SetDtStampTime(stamp)
	vev.SetSummary(ev.Event)
	if span.AllDay {
		vev.SetAllDayStartAt(span.Start)
		vev.SetAllDayEndAt(span.End)
	} else {
		vev.SetStartAt(span.Start)
		vev.SetEndAt(span.End)
	}

	locs := e.dir.EventLocations(ev)
	if where := e.locationText(ev); where != "" {
		vev.SetLocation(where)
	}
	if len(locs) > 0 {
		vev.SetProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%.6f;%.6f", locs[0].Lat, locs[0].Lng))
	}

	var desc []string
	if ev.Time != "" {
		desc = append(desc, "Time: "+ev.Time)
	}
	if ev.Note != "" {
		desc = append(desc, "Note: "+ev.Note)
	}
	if len(desc) > 0 {
		vev.SetDescription(strings.Join(desc, "\n"))
	}
	return true
}

// locationText lists the event's venues by display name, keeping names the
// directory does not know as written.
func (e *Exporter) locationText(ev model.Event) string {
	names := ev.VenueNames()
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if loc, ok := e.dir.Resolve(name); ok {
			name = loc.Name
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return strings.Join(out, "; ")
}
