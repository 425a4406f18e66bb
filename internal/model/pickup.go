package model

import "time"

// PickupStatus is the lifecycle state of a pickup request.
type PickupStatus string

const (
	PickupStatusPending    PickupStatus = "Pending"
	PickupStatusScheduled  PickupStatus = "Scheduled"
	PickupStatusInProgress PickupStatus = "In Progress"
	PickupStatusCompleted  PickupStatus = "Completed"
	PickupStatusCancelled  PickupStatus = "Cancelled"
)

// Valid reports whether s is a known status.
func (s PickupStatus) Valid() bool {
	switch s {
	case PickupStatusPending, PickupStatusScheduled, PickupStatusInProgress,
		PickupStatusCompleted, PickupStatusCancelled:
		return true
	}
	return false
}

// OpenStatuses are the statuses in which an unassigned pickup can still be
// picked up by a collector.
var OpenStatuses = []PickupStatus{PickupStatusPending, PickupStatusScheduled}

// IsOpen reports whether s is one of OpenStatuses.
func (s PickupStatus) IsOpen() bool {
	return s == PickupStatusPending || s == PickupStatusScheduled
}

// PickupRequest is a household's request for waste collection.
type PickupRequest struct {
	ID          int64        `json:"id"`
	HouseholdID int64        `json:"household_id"`
	Address     string       `json:"address"`
	Notes       string       `json:"notes,omitempty"`
	QuantityKG  float64      `json:"quantity_kg"`
	Status      PickupStatus `json:"status"`
	CollectorID *int64       `json:"collector_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Location
}

// NewPickupRequest returns a pending, unassigned pickup request.
func NewPickupRequest(householdID int64, address string) PickupRequest {
	return PickupRequest{
		HouseholdID: householdID,
		Address:     address,
		Status:      PickupStatusPending,
	}
}

// Assigned reports whether a collector has been set.
func (p PickupRequest) Assigned() bool {
	return p.CollectorID != nil
}

// AssignTo sets the collector and moves the request to Scheduled.
func (p *PickupRequest) AssignTo(collectorID int64) {
	p.CollectorID = &collectorID
	p.Status = PickupStatusScheduled
}
