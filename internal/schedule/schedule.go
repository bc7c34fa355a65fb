package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
)

// DateLayout is the layout of schedule date keys.
const DateLayout = "2006-01-02"

// maxOccurrencesPerRule caps recurring expansion, one festival year.
const maxOccurrencesPerRule = 366

// Recurring describes an event repeated over several date buckets, e.g. a
// novena mass said every morning before the feast.
type Recurring struct {
	RRule string      `json:"rrule"`
	Start string      `json:"start"`
	Event model.Event `json:"event"`
}

// File is the on-disk shape of a schedule document.
type File struct {
	Schedule  map[string][]model.Event `json:"schedule"`
	Recurring []Recurring              `json:"recurring,omitempty"`
}

// Store is the immutable festival schedule: date -> ordered events.
// It is safe for concurrent readers; nothing mutates it after Parse.
type Store struct {
	dates  []string
	events map[string][]model.Event
}

// Load reads and parses a schedule file from disk.
func Load(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("schedule path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	appLog.Info("schedule loaded", "path", path, "dates", len(s.dates), "events", s.Len())
	return s, nil
}

// Parse builds a Store from a schedule document. Recurring entries are
// expanded into their date buckets after the literal events of that date.
func Parse(data []byte) (*Store, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Schedule == nil && len(f.Recurring) == 0 {
		return nil, errors.New(`missing "schedule" object`)
	}
	return New(f.Schedule, f.Recurring)
}

// New builds a Store from in-memory buckets.
func New(buckets map[string][]model.Event, recurring []Recurring) (*Store, error) {
	s := &Store{events: make(map[string][]model.Event, len(buckets))}
	for date, evs := range buckets {
		if strings.TrimSpace(date) == "" {
			return nil, errors.New("empty schedule date")
		}
		cp := make([]model.Event, 0, len(evs))
		for _, ev := range evs {
			cp = append(cp, ev.Clone())
		}
		s.events[date] = cp
	}

	for i, rec := range recurring {
		dates, err := expandRecurring(rec)
		if err != nil {
			return nil, fmt.Errorf("recurring[%d]: %w", i, err)
		}
		for _, d := range dates {
			s.events[d] = append(s.events[d], rec.Event.Clone())
		}
	}

	s.dates = make([]string, 0, len(s.events))
	for d := range s.events {
		s.dates = append(s.dates, d)
	}
	sort.Strings(s.dates)
	return s, nil
}

func expandRecurring(rec Recurring) ([]string, error) {
	if strings.TrimSpace(rec.Event.Event) == "" {
		return nil, errors.New("event name is empty")
	}
	start, err := time.ParseInLocation(DateLayout, rec.Start, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid start %q: %w", rec.Start, err)
	}
	r, err := rrule.StrToRRule(rec.RRule)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule %q: %w", rec.RRule, err)
	}
	r.DTStart(start)

	occ := r.Between(start, start.AddDate(1, 0, 0), true)
	if len(occ) > maxOccurrencesPerRule {
		appLog.Warn("recurring event truncated", "event", rec.Event.Event, "cap", maxOccurrencesPerRule)
		occ = occ[:maxOccurrencesPerRule]
	}

	out := make([]string, 0, len(occ))
	seen := make(map[string]struct{}, len(occ))
	for _, t := range occ {
		d := t.Format(DateLayout)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

// Dates returns all schedule dates sorted lexically.
func (s *Store) Dates() []string {
	return append([]string(nil), s.dates...)
}

// HasDate reports whether date is a schedule bucket.
func (s *Store) HasDate(date string) bool {
	_, ok := s.events[date]
	return ok
}

// Events returns the events of one date in schedule order. Unknown dates
// yield an empty slice.
func (s *Store) Events(date string) []model.Event {
	evs := s.events[date]
	out := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Clone())
	}
	return out
}

// Dated returns the events of one date paired with their refs.
func (s *Store) Dated(date string) []model.DatedEvent {
	evs := s.events[date]
	out := make([]model.DatedEvent, 0, len(evs))
	for i, ev := range evs {
		out = append(out, model.DatedEvent{
			Ref:   model.EventRef{Date: date, Index: i},
			Event: ev.Clone(),
		})
	}
	return out
}

// Event looks up an event by ref.
func (s *Store) Event(ref model.EventRef) (model.Event, bool) {
	evs, ok := s.events[ref.Date]
	if !ok || ref.Index < 0 || ref.Index >= len(evs) {
		return model.Event{}, false
	}
	return evs[ref.Index].Clone(), true
}

// Each calls fn for every event, dates in sorted order and events in bucket
// order. Iteration stops when fn returns false.
func (s *Store) Each(fn func(ref model.EventRef, ev model.Event) bool) {
	for _, d := range s.dates {
		for i, ev := range s.events[d] {
			if !fn(model.EventRef{Date: d, Index: i}, ev.Clone()) {
				return
			}
		}
	}
}

// Len is the total number of events across all dates.
func (s *Store) Len() int {
	n := 0
	for _, evs := range s.events {
		n += len(evs)
	}
	return n
}

// DefaultDate returns preferred when it is a schedule date, otherwise the
// first date, or "" for an empty schedule.
func (s *Store) DefaultDate(preferred string) string {
	if s.HasDate(preferred) {
		return preferred
	}
	if len(s.dates) == 0 {
		return ""
	}
	return s.dates[0]
}

// Buckets returns a deep copy of the schedule for serialisation.
func (s *Store) Buckets() map[string][]model.Event {
	out := make(map[string][]model.Event, len(s.events))
	for d := range s.events {
		out[d] = s.Events(d)
	}
	return out
}

// Merge returns a new Store holding base's events followed, per date, by
// extra's events.
func Merge(base *Store, extra map[string][]model.Event) (*Store, error) {
	buckets := base.Buckets()
	for date, evs := range extra {
		buckets[date] = append(buckets[date], evs...)
	}
	return New(buckets, nil)
}
