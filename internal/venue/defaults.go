package venue

import "sinulogmap/internal/model"

// DefaultCenter is the centre of Cebu City.
var DefaultCenter = model.LatLng{Lat: 10.3157, Lng: 123.8854}

// DefaultLocations is the built-in Sinulog venue directory, used when the
// config file does not define its own.
func DefaultLocations() map[string]model.Location {
	return map[string]model.Location{
		"SM Seaside Cebu":         {Name: "SM Seaside Cebu", Lat: 10.2751, Lng: 123.86},
		"GMall":                   {Name: "GMall", Lat: 10.3127, Lng: 123.8854},
		"Basilica del Sto. Nino":  {Name: "Basilica del Sto. Nino", Lat: 10.2947, Lng: 123.9016},
		"Basilica Pilgrim Center": {Name: "Basilica Pilgrim Center", Lat: 10.2947, Lng: 123.9016},
		"Cebu City Sports Center": {Name: "Cebu City Sports Center", Lat: 10.3033, Lng: 123.8989},
		"Fuente Osmeña":           {Name: "Fuente Osmeña", Lat: 10.3089, Lng: 123.8914},
		"Plaza Independencia":     {Name: "Plaza Independencia", Lat: 10.2925, Lng: 123.9027},
		"Ayala Center Cebu":       {Name: "Ayala Center Cebu", Lat: 10.3187, Lng: 123.9048},
		"SM City Cebu":            {Name: "SM City Cebu", Lat: 10.3114, Lng: 123.9178},
		"Pacific Grand Ballroom":  {Name: "Waterfront Cebu City", Lat: 10.3152, Lng: 123.9161},
		"MCIAA T1":                {Name: "Mactan International Airport", Lat: 10.3078, Lng: 123.9794},
		"SRP":                     {Name: "South Road Properties", Lat: 10.2767, Lng: 123.8824},
		"Mandaue City":            {Name: "Mandaue City", Lat: 10.3231, Lng: 123.9334},
		"Cebu City":               {Name: "Cebu City", Lat: 10.3157, Lng: 123.8854},
	}
}

// DefaultAliases maps alternate spellings seen in the schedule to
// directory keys.
func DefaultAliases() map[string]string {
	return map[string]string{
		"The Gallery, Ayala Center Cebu": "Ayala Center Cebu",
		"The Terraces, Ayala Center":     "Ayala Center Cebu",
	}
}

// DefaultDirectory returns a Directory over the built-in tables.
func DefaultDirectory() *Directory {
	return New(DefaultLocations(), DefaultAliases())
}
