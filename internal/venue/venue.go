package venue

import (
	"sort"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/schedule"
)

// Directory maps canonical venue names to locations and normalises
// alternate spellings through an alias table. It is built once at startup
// and only read afterwards.
type Directory struct {
	locations map[string]model.Location
	aliases   map[string]string
}

// New builds a Directory from copies of the given tables.
func New(locations map[string]model.Location, aliases map[string]string) *Directory {
	d := &Directory{
		locations: make(map[string]model.Location, len(locations)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for k, v := range locations {
		d.locations[k] = v
	}
	for k, v := range aliases {
		d.aliases[k] = v
	}
	return d
}

// Canonical resolves an alias to its canonical venue name. Names without an
// alias are already canonical.
func (d *Directory) Canonical(name string) string {
	if c, ok := d.aliases[name]; ok {
		return c
	}
	return name
}

// Resolve alias-normalises name and looks it up in the directory.
func (d *Directory) Resolve(name string) (model.Location, bool) {
	loc, ok := d.locations[d.Canonical(name)]
	return loc, ok
}

// EventLocations returns the distinct locations an event refers to: venue
// first, then venues in order. Names missing from the directory are left
// out.
func (d *Directory) EventLocations(ev model.Event) []model.Location {
	names := ev.VenueNames()
	out := make([]model.Location, 0, len(names))
	for _, name := range names {
		loc, ok := d.Resolve(name)
		if !ok {
			appLog.Debug("venue not in directory", "venue", name, "event", ev.Event)
			continue
		}
		if !Contains(out, loc) {
			out = append(out, loc)
		}
	}
	return out
}

// AllVenues returns every location referenced anywhere in the schedule, in
// order of first appearance over sorted dates.
func (d *Directory) AllVenues(s *schedule.Store) []model.Location {
	seen := make(map[string]struct{})
	out := make([]model.Location, 0, len(d.locations))
	s.Each(func(_ model.EventRef, ev model.Event) bool {
		for _, name := range ev.VenueNames() {
			key := d.Canonical(name)
			loc, ok := d.locations[key]
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, loc)
		}
		return true
	})
	return out
}

// ByName finds a location by canonical name, alias, or display name.
func (d *Directory) ByName(name string) (model.Location, bool) {
	if loc, ok := d.Resolve(name); ok {
		return loc, true
	}
	for _, key := range d.Names() {
		if loc := d.locations[key]; loc.Name == name {
			return loc, true
		}
	}
	return model.Location{}, false
}

// Names returns the canonical names sorted.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.locations))
	for k := range d.locations {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len is the number of canonical venues.
func (d *Directory) Len() int {
	return len(d.locations)
}

// Contains reports whether loc is in locs, comparing by value.
func Contains(locs []model.Location, loc model.Location) bool {
	for _, l := range locs {
		if l == loc {
			return true
		}
	}
	return false
}
