package model

import "time"

// DefaultServiceRadiusKM is the service radius given to new collectors.
const DefaultServiceRadiusKM = 10.0

// Collector is a waste collection agent.
type Collector struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	PhoneNumber     string    `json:"phone_number"`
	LicenseNumber   string    `json:"license_number,omitempty"`
	VehicleNumber   string    `json:"vehicle_number,omitempty"`
	Available       bool      `json:"is_available"`
	ServiceRadiusKM float64   `json:"service_radius_km"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Location
}

// NewCollector returns an available collector with the default service radius.
func NewCollector(name, phone string) Collector {
	return Collector{
		Name:            name,
		PhoneNumber:     phone,
		Available:       true,
		ServiceRadiusKM: DefaultServiceRadiusKM,
	}
}
