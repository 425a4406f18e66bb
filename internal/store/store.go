// Package store persists collectors, pickup requests and assignments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/isuku/isuku-dispatch/internal/geo"
	"github.com/isuku/isuku-dispatch/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrPickupAssigned is returned by ClaimPickup when the pickup already
	// has a collector.
	ErrPickupAssigned = eris.New("store: pickup already assigned")

	// ErrCollectorUnavailable is returned by ClaimPickup when the collector
	// was marked unavailable before the claim could be written.
	ErrCollectorUnavailable = eris.New("store: collector unavailable")
)

// CollectorQuery filters QueryCollectors. Zero value matches every collector.
type CollectorQuery struct {
	Available bool // only is_available = true
	Located   bool // only collectors with both coordinates set
}

// PickupQuery filters QueryPickups. Zero value matches every pickup.
type PickupQuery struct {
	Statuses   []model.PickupStatus // empty = any status
	Located    bool                 // only pickups with both coordinates set
	Unassigned bool                 // only pickups with no collector
	// Within narrows the result to located pickups inside the area. It is a
	// prefilter: a store may return pickups marginally beyond the radius,
	// never fewer than those inside it.
	Within *Area
}

// Area is a circle around a point.
type Area struct {
	Latitude  float64
	Longitude float64
	RadiusKM  float64
}

// Contains reports whether l lies inside a by haversine distance.
func (a Area) Contains(l model.Location) bool {
	if !l.HasLocation() {
		return false
	}
	lat, lon := l.Coords()
	return geo.DistanceKM(a.Latitude, a.Longitude, lat, lon) <= a.RadiusKM
}

// Claim binds a collector to a pickup request.
type Claim struct {
	PickupID    int64
	CollectorID int64
	DistanceKM  *float64
	Method      model.AssignmentMethod
}

// Store defines persistence for the dispatch service.
type Store interface {
	// QueryCollectors returns collectors matching q ordered by id.
	QueryCollectors(ctx context.Context, q CollectorQuery) ([]model.Collector, error)
	GetCollector(ctx context.Context, id int64) (*model.Collector, error)
	// CreateCollector inserts c and fills its ID and timestamps.
	CreateCollector(ctx context.Context, c *model.Collector) error
	// SaveCollector persists the mutable fields of c.
	SaveCollector(ctx context.Context, c *model.Collector) error
	// UpsertCollectors inserts or updates collectors keyed by license number.
	UpsertCollectors(ctx context.Context, cs []model.Collector) (int64, error)

	// QueryPickups returns pickup requests matching q ordered by id.
	QueryPickups(ctx context.Context, q PickupQuery) ([]model.PickupRequest, error)
	GetPickup(ctx context.Context, id int64) (*model.PickupRequest, error)
	// CreatePickup inserts p and fills its ID and timestamps.
	CreatePickup(ctx context.Context, p *model.PickupRequest) error
	// SavePickup persists the mutable fields of p.
	SavePickup(ctx context.Context, p *model.PickupRequest) error

	// ClaimPickup atomically verifies the collector is still available, sets
	// the pickup's collector and Scheduled status only if it has no collector
	// yet, and records the assignment. It returns ErrCollectorUnavailable,
	// ErrPickupAssigned or ErrNotFound when the claim cannot be made.
	ClaimPickup(ctx context.Context, c Claim) (*model.Assignment, error)
	// ListAssignments returns the assignment history of a pickup, oldest first.
	ListAssignments(ctx context.Context, pickupID int64) ([]model.Assignment, error)

	Migrate(ctx context.Context) error
	Close() error
}

func statusStrings(statuses []model.PickupStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
