// Package geocode resolves pickup addresses to coordinates.
package geocode

import "context"

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address. An address no provider can place is
	// returned with Matched false and a nil error.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes addrs, returning results in input order.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // Optional identifier for batch correlation
	Street  string
	City    string
	Country string
}

// Result holds the geocoding output for an address.
type Result struct {
	ID        string  `json:"id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    string  `json:"source"`
	Quality   string  `json:"quality"` // "rooftop", "centroid", "approximate"
	Matched   bool    `json:"matched"`
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
	Available() bool
}
