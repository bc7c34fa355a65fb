package ics

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
)

// maxOccurrences caps recurring VEVENT expansion per event.
const maxOccurrences = 400

// Import reads an iCalendar document and converts its VEVENTs into
// schedule buckets keyed by date in loc. Recurring events are expanded
// over one year from their first start, honouring EXDATE. Events that
// cannot be read are logged and skipped.
func Import(body []byte, loc *time.Location) (map[string][]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	type dated struct {
		start time.Time
		ev    model.Event
	}
	byDate := make(map[string][]dated)

	for _, ve := range cal.Events() {
		occ, err := readVEvent(ve, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "err", err)
			continue
		}
		for _, o := range occ {
			date := o.Start.In(loc).Format("2006-01-02")
			ev := model.Event{
				Event: propValue(ve, ical.ComponentPropertySummary),
				Time:  FormatSpan(o, loc),
				Venue: propValue(ve, ical.ComponentPropertyLocation),
				Note:  propValue(ve, ical.ComponentPropertyDescription),
			}
			byDate[date] = append(byDate[date], dated{start: o.Start, ev: ev})
		}
	}

	out := make(map[string][]model.Event, len(byDate))
	for date, list := range byDate {
		sort.SliceStable(list, func(i, j int) bool { return list[i].start.Before(list[j].start) })
		evs := make([]model.Event, 0, len(list))
		for _, d := range list {
			evs = append(evs, d.ev)
		}
		out[date] = evs
	}
	appLog.Info("ics import completed", "dates", len(out), "vevents", len(cal.Events()))
	return out, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func readVEvent(ve *ical.VEvent, loc *time.Location) ([]Span, error) {
	if propValue(ve, ical.ComponentPropertySummary) == "" {
		return nil, errors.New("missing SUMMARY")
	}
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return nil, errors.New("missing DTSTART")
	}

	allDay := !strings.Contains(dtStart.Value, "T")
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	var first Span
	if allDay {
		day, err := time.ParseInLocation("20060102", strings.TrimSpace(dtStart.Value), loc)
		if err != nil {
			return nil, err
		}
		first = Span{Start: day, End: day.AddDate(0, 0, 1), AllDay: true}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return nil, err
		}
		end, err := ve.GetEndAt()
		if err != nil || !end.After(start) {
			end = start.Add(DefaultDuration)
		}
		first = Span{Start: start.In(loc), End: end.In(loc)}
	}

	raw := propValue(ve, ical.ComponentPropertyRrule)
	if raw == "" {
		return []Span{first}, nil
	}
	return expand(first, raw, exDates(ve, loc))
}

func expand(first Span, raw string, skip map[string]struct{}) ([]Span, error) {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, err
	}
	r.DTStart(first.Start)
	dur := first.End.Sub(first.Start)

	starts := r.Between(first.Start, first.Start.AddDate(1, 0, 0), true)
	if len(starts) > maxOccurrences {
		appLog.Warn("ics recurrence truncated", "rrule", raw, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}
	out := make([]Span, 0, len(starts))
	for _, s := range starts {
		if _, ok := skip[s.Format("20060102")]; ok {
			continue
		}
		out = append(out, Span{Start: s, End: s.Add(dur), AllDay: first.AllDay})
	}
	return out, nil
}

// exDates collects EXDATE values as local calendar days.
func exDates(ve *ical.VEvent, loc *time.Location) map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), loc); err == nil {
				out[t.In(loc).Format("20060102")] = struct{}{}
			}
		}
	}
	return out
}

// parseICSTime handles the basic DATE / DATE-TIME / UTC forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
