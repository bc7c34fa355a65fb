package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Event is a single entry of the festival schedule. It belongs to exactly
// one date bucket and is never mutated after load.
type Event struct {
	Event  string   `json:"event"`
	Time   string   `json:"time"`
	Venue  string   `json:"venue,omitempty"`
	Venues []string `json:"venues,omitempty"`
	Note   string   `json:"note,omitempty"`
}

// VenueNames returns venue followed by every entry of venues, unresolved.
func (e Event) VenueNames() []string {
	names := make([]string, 0, 1+len(e.Venues))
	if e.Venue != "" {
		names = append(names, e.Venue)
	}
	for _, v := range e.Venues {
		if v != "" {
			names = append(names, v)
		}
	}
	return names
}

// Clone returns a copy that shares no slices with e.
func (e Event) Clone() Event {
	out := e
	if e.Venues != nil {
		out.Venues = append([]string(nil), e.Venues...)
	}
	return out
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

func (p LatLng) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Valid reports whether the pair lies inside the WGS84 ranges.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Location is a named point on the map. Name may differ from the directory
// key it is stored under (e.g. "Pacific Grand Ballroom" renders as
// "Waterfront Cebu City").
type Location struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lng  float64 `json:"lng" yaml:"lng"`
}

func (l Location) LatLng() LatLng {
	return LatLng{Lat: l.Lat, Lng: l.Lng}
}

// Key identifies a marker: two locations with the same name and position
// render as one marker.
func (l Location) Key() string {
	return l.Name + "-" + strconv.FormatFloat(l.Lat, 'f', -1, 64) + "-" + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

// Bounds is a lat/lng rectangle used to fit the map viewport.
type Bounds struct {
	NorthEast LatLng `json:"northeast"`
	SouthWest LatLng `json:"southwest"`
}

// EventRef is the stable identity of a scheduled event: its date bucket and
// its index inside that bucket. Compare by value.
type EventRef struct {
	Date  string `json:"date"`
	Index int    `json:"index"`
}

func (r EventRef) String() string {
	return r.Date + "#" + strconv.Itoa(r.Index)
}

var ErrInvalidRef = errors.New("invalid event ref")

// ParseEventRef parses the "<date>#<index>" form produced by String.
func ParseEventRef(s string) (EventRef, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return EventRef{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return EventRef{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return EventRef{Date: s[:i], Index: n}, nil
}

// DatedEvent pairs an event with its ref.
type DatedEvent struct {
	Ref   EventRef `json:"ref"`
	Event Event    `json:"event"`
}
