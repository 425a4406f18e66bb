// Package model defines the dispatch domain types.
package model

// Location is a point in decimal degrees. Either both coordinates are set or
// neither is.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// NewLocation returns a Location with both coordinates set.
func NewLocation(lat, lon float64) Location {
	return Location{Latitude: &lat, Longitude: &lon}
}

// HasLocation reports whether both coordinates are present.
func (l Location) HasLocation() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Coords returns the coordinates. Callers must check HasLocation first.
func (l Location) Coords() (lat, lon float64) {
	return *l.Latitude, *l.Longitude
}

// SetLocation sets both coordinates.
func (l *Location) SetLocation(lat, lon float64) {
	l.Latitude = &lat
	l.Longitude = &lon
}

// ClearLocation unsets both coordinates.
func (l *Location) ClearLocation() {
	l.Latitude = nil
	l.Longitude = nil
}
