package model

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentMethod records how a collector was bound to a pickup.
type AssignmentMethod string

const (
	AssignmentMethodAuto   AssignmentMethod = "auto"
	AssignmentMethodManual AssignmentMethod = "manual"
)

// Assignment is one successful claim of a pickup by a collector.
type Assignment struct {
	ID          uuid.UUID        `json:"id"`
	PickupID    int64            `json:"pickup_id"`
	CollectorID int64            `json:"collector_id"`
	DistanceKM  *float64         `json:"distance_km,omitempty"`
	Method      AssignmentMethod `json:"method"`
	AssignedAt  time.Time        `json:"assigned_at"`
}
