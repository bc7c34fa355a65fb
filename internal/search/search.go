// Package search matches free-text queries against the festival schedule.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
)

// Active reports whether query switches the event list into search mode.
func Active(query string) bool {
	return strings.TrimSpace(query) != ""
}

// Run returns every event whose name, venue, venues, time or note contains
// the query, case-insensitively. A blank query is inactive and returns nil.
// Results follow schedule order: sorted dates, then bucket order.
func Run(s *schedule.Store, query string) []model.DatedEvent {
	if !Active(query) {
		return nil
	}
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	out := make([]model.DatedEvent, 0)
	s.Each(func(ref model.EventRef, ev model.Event) bool {
		if matches(fold, ev, q) {
			out = append(out, model.DatedEvent{Ref: ref, Event: ev})
		}
		return true
	})
	return out
}

func matches(fold cases.Caser, ev model.Event, q string) bool {
	fields := [...]string{
		ev.Event,
		ev.Venue,
		strings.Join(ev.Venues, " "),
		ev.Time,
		ev.Note,
	}
	for _, f := range fields {
		if f != "" && strings.Contains(fold.String(f), q) {
			return true
		}
	}
	return false
}
