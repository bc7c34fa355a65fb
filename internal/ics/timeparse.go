package ics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDuration is used for events that only state a start time.
const DefaultDuration = time.Hour

// Span is the resolved time window of one schedule entry.
type Span struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

type clock struct {
	hour, min int
	meridiem  byte // 'a', 'p' or 0
}

// clockRe matches "6", "6:30", "6AM", "6:30 p.m.", "18:00". Bare numbers
// are discarded later unless they carry a meridiem.
var clockRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(a\.?\s?m\.?|p\.?\s?m\.?)?`)

// ParseSpan interprets the free-form time text of an event on date (in
// layout 2006-01-02) in loc. Texts with no recognisable clock time, like
// "Whole day" or "TBA", yield an all-day span.
func ParseSpan(date, text string, loc *time.Location) (Span, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return Span{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	clocks := findClocks(text)
	switch len(clocks) {
	case 0:
		return Span{Start: day, End: day.AddDate(0, 0, 1), AllDay: true}, nil
	case 1:
		start := at(day, clocks[0].resolve())
		return Span{Start: start, End: start.Add(DefaultDuration)}, nil
	}

	first, second := clocks[0], clocks[1]
	endMin := second.resolve()
	var startMin int
	if first.meridiem == 0 && second.meridiem != 0 && first.hour <= 12 {
		// "11:00 - 1:00 PM" is 11 AM; "6:00 - 8:00 PM" is 6 PM.
		inherit := first
		inherit.meridiem = second.meridiem
		startMin = inherit.resolve()
		if startMin > endMin {
			startMin = first.resolveOpposite(second.meridiem)
		}
	} else {
		startMin = first.resolve()
	}

	start := at(day, startMin)
	end := at(day, endMin)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Span{Start: start, End: end}, nil
}

func findClocks(text string) []clock {
	text = strings.ReplaceAll(strings.ToLower(text), "noon", "12:00 pm")
	text = strings.ReplaceAll(text, "midnight", "12:00 am")

	var out []clock
	for _, m := range clockRe.FindAllStringSubmatch(text, -1) {
		if m[2] == "" && m[3] == "" {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		c := clock{hour: h, min: mins}
		if m[3] != "" {
			c.meridiem = m[3][0]
		}
		if !c.valid() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (c clock) valid() bool {
	if c.min < 0 || c.min > 59 {
		return false
	}
	if c.meridiem != 0 {
		return c.hour >= 1 && c.hour <= 12
	}
	return c.hour >= 0 && c.hour <= 23
}

// resolve returns minutes since midnight.
func (c clock) resolve() int {
	h := c.hour
	switch c.meridiem {
	case 'a':
		if h == 12 {
			h = 0
		}
	case 'p':
		if h != 12 {
			h += 12
		}
	}
	return h*60 + c.min
}

func (c clock) resolveOpposite(m byte) int {
	if m == 'p' {
		c.meridiem = 'a'
	} else {
		c.meridiem = 'p'
	}
	return c.resolve()
}

func at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

// FormatSpan renders a span the way schedule entries write times.
func FormatSpan(s Span, loc *time.Location) string {
	if s.AllDay {
		return "All day"
	}
	if loc == nil {
		loc = time.UTC
	}
	start := s.Start.In(loc).Format("3:04 PM")
	if s.End.IsZero() || s.End.Sub(s.Start) == DefaultDuration {
		return start
	}
	return start + " - " + s.End.In(loc).Format("3:04 PM")
}
