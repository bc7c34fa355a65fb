package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/venue"
)

func exportFixture(t *testing.T) *Exporter {
	t.Helper()
	store, err := schedule.New(map[string][]model.Event{
		"2025-01-15": {
			{Event: "Opening Mass", Time: "6:00 AM", Venue: "Basilica del Sto. Nino", Note: "Bring candles"},
			{Event: "Secret Gig", Time: "TBA", Venue: "Unknown Bar"},
		},
		"2025-01-19": {
			{Event: "Grand Parade", Time: "7:00 AM - 5:00 PM", Venue: "Cebu City Sports Center", Venues: []string{"Fuente Osmeña"}},
		},
	}, nil)
	require.NoError(t, err)
	e := NewExporter(store, venue.DefaultDirectory(), manila(t))
	e.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func parseBack(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	return cal
}

func eventByUID(t *testing.T, cal *ical.Calendar, uid string) *ical.VEvent {
	t.Helper()
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value == uid {
			return ev
		}
	}
	t.Fatalf("event %s not found", uid)
	return nil
}

func TestExporter_WriteAll(t *testing.T) {
	e := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, e.WriteAll(&buf))

	out := buf.String()
	assert.Contains(t, out, "X-WR-CALNAME:Sinulog Festival")
	assert.Contains(t, out, "X-WR-TIMEZONE:Asia/Manila")

	cal := parseBack(t, buf.Bytes())
	require.Len(t, cal.Events(), 3)

	mass := eventByUID(t, cal, UID(model.EventRef{Date: "2025-01-15", Index: 0}, model.Event{Event: "Opening Mass"}))
	assert.Equal(t, "Opening Mass", mass.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Basilica del Sto. Nino", mass.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "10.294700;123.901600", mass.GetProperty(ical.ComponentPropertyGeo).Value)
	start, err := mass.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 1, 14, 22, 0, 0, 0, time.UTC)), start.String())
	end, err := mass.GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, end.Sub(start))

	gig := eventByUID(t, cal, UID(model.EventRef{Date: "2025-01-15", Index: 1}, model.Event{Event: "Secret Gig"}))
	assert.Equal(t, "20250115", gig.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Nil(t, gig.GetProperty(ical.ComponentPropertyGeo), "unresolved venue has no coordinates")
	assert.Equal(t, "Unknown Bar", gig.GetProperty(ical.ComponentPropertyLocation).Value)
}

func TestExporter_WriteEvent(t *testing.T) {
	e := exportFixture(t)
	ref := model.EventRef{Date: "2025-01-19", Index: 0}

	var buf bytes.Buffer
	require.NoError(t, e.WriteEvent(&buf, ref))
	cal := parseBack(t, buf.Bytes())
	require.Len(t, cal.Events(), 1)

	parade := cal.Events()[0]
	start, err := parade.GetStartAt()
	require.NoError(t, err)
	end, err := parade.GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Hour, end.Sub(start))

	assert.Error(t, e.WriteEvent(&buf, model.EventRef{Date: "2025-01-19", Index: 4}))
}

func TestUID_Stable(t *testing.T) {
	ref := model.EventRef{Date: "2025-01-19", Index: 0}
	a := UID(ref, model.Event{Event: "Grand Parade"})
	assert.Equal(t, a, UID(ref, model.Event{Event: "Grand Parade", Time: "changed"}))
	assert.NotEqual(t, a, UID(ref, model.Event{Event: "Fluvial Parade"}))
	assert.True(t, strings.HasSuffix(a, "@sinulogmap"))
}

func TestLocationText(t *testing.T) {
	e := exportFixture(t)
	got := e.locationText(model.Event{
		Venue:  "The Gallery, Ayala Center Cebu",
		Venues: []string{"Ayala Center Cebu", "Pacific Grand Ballroom", "Somewhere"},
	})
	assert.Equal(t, "Ayala Center Cebu; Waterfront Cebu City; Somewhere", got)
}
