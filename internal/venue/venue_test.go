package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
)

func TestResolve_Alias(t *testing.T) {
	d := DefaultDirectory()

	loc, ok := d.Resolve("The Gallery, Ayala Center Cebu")
	require.True(t, ok)
	assert.Equal(t, model.Location{Name: "Ayala Center Cebu", Lat: 10.3187, Lng: 123.9048}, loc)

	assert.Equal(t, "Ayala Center Cebu", d.Canonical("The Terraces, Ayala Center"))
	assert.Equal(t, "GMall", d.Canonical("GMall"))
	assert.Equal(t, "Somewhere", d.Canonical("Somewhere"))

	_, ok = d.Resolve("Somewhere")
	assert.False(t, ok)
}

func TestEventLocations(t *testing.T) {
	d := DefaultDirectory()
	ayala := model.Location{Name: "Ayala Center Cebu", Lat: 10.3187, Lng: 123.9048}
	srp := model.Location{Name: "South Road Properties", Lat: 10.2767, Lng: 123.8824}

	tests := []struct {
		name string
		ev   model.Event
		want []model.Location
	}{
		{
			name: "no venues",
			ev:   model.Event{Event: "x"},
			want: []model.Location{},
		},
		{
			name: "venue then venues order",
			ev:   model.Event{Venue: "SRP", Venues: []string{"Ayala Center Cebu"}},
			want: []model.Location{srp, ayala},
		},
		{
			name: "aliases dedupe onto canonical",
			ev: model.Event{
				Venue:  "The Gallery, Ayala Center Cebu",
				Venues: []string{"The Terraces, Ayala Center", "Ayala Center Cebu", "SRP"},
			},
			want: []model.Location{ayala, srp},
		},
		{
			name: "unknown venues dropped",
			ev:   model.Event{Venue: "Nowhere", Venues: []string{"SRP", "Atlantis"}},
			want: []model.Location{srp},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.EventLocations(tt.ev))
		})
	}
}

func TestEventLocations_SamePositionDifferentNames(t *testing.T) {
	d := DefaultDirectory()
	got := d.EventLocations(model.Event{Venues: []string{"Basilica del Sto. Nino", "Basilica Pilgrim Center"}})
	assert.Len(t, got, 2)
}

func TestAllVenues(t *testing.T) {
	s, err := schedule.New(map[string][]model.Event{
		"2025-01-19": {
			{Event: "Grand Parade", Venues: []string{"Cebu City Sports Center", "SRP"}},
		},
		"2025-01-15": {
			{Event: "Opening", Venue: "The Gallery, Ayala Center Cebu"},
			{Event: "Concert", Venue: "Ayala Center Cebu"},
			{Event: "Mystery", Venue: "Unknown Hall"},
			{Event: "Sports", Venue: "SRP"},
		},
	}, nil)
	require.NoError(t, err)

	got := DefaultDirectory().AllVenues(s)
	names := make([]string, 0, len(got))
	for _, l := range got {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"Ayala Center Cebu", "South Road Properties", "Cebu City Sports Center"}, names)
}

func TestByName(t *testing.T) {
	d := DefaultDirectory()

	loc, ok := d.ByName("Waterfront Cebu City")
	require.True(t, ok)
	assert.Equal(t, 10.3152, loc.Lat)

	loc, ok = d.ByName("Pacific Grand Ballroom")
	require.True(t, ok)
	assert.Equal(t, "Waterfront Cebu City", loc.Name)

	_, ok = d.ByName("nope")
	assert.False(t, ok)
}

func TestNew_CopiesTables(t *testing.T) {
	locs := map[string]model.Location{"A": {Name: "A"}}
	d := New(locs, nil)
	locs["B"] = model.Location{Name: "B"}
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, []string{"A"}, d.Names())
}
