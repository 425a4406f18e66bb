// Package monitoring watches the dispatch backlog and raises webhook alerts
// when pickups wait too long for a collector.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/internal/store"
)

// BacklogSnapshot is a point-in-time view of the dispatch backlog.
type BacklogSnapshot struct {
	OpenPickups       int `json:"open_pickups"`
	UnassignedPickups int `json:"unassigned_pickups"`
	// StalePickups are unassigned pickups older than StaleAfter.
	StalePickups     int `json:"stale_pickups"`
	UnlocatedPickups int `json:"unlocated_pickups"`

	AvailableCollectors int `json:"available_collectors"`

	StaleAfter  time.Duration `json:"stale_after"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Records is the read side of store.Store the collector needs.
type Records interface {
	QueryCollectors(ctx context.Context, q store.CollectorQuery) ([]model.Collector, error)
	QueryPickups(ctx context.Context, q store.PickupQuery) ([]model.PickupRequest, error)
}

// Collector gathers backlog snapshots from the store.
type Collector struct {
	records Records
	now     func() time.Time
}

// NewCollector creates a backlog collector.
func NewCollector(records Records) *Collector {
	return &Collector{records: records, now: time.Now}
}

// Collect counts open pickups and the collectors able to take them.
func (c *Collector) Collect(ctx context.Context, staleAfter time.Duration) (*BacklogSnapshot, error) {
	now := c.now().UTC()
	snap := &BacklogSnapshot{StaleAfter: staleAfter, CollectedAt: now}

	pickups, err := c.records.QueryPickups(ctx, store.PickupQuery{Statuses: model.OpenStatuses})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: query pickups")
	}
	cutoff := now.Add(-staleAfter)
	for _, p := range pickups {
		snap.OpenPickups++
		if p.Assigned() {
			continue
		}
		snap.UnassignedPickups++
		if !p.HasLocation() {
			snap.UnlocatedPickups++
		}
		if p.CreatedAt.Before(cutoff) {
			snap.StalePickups++
		}
	}

	collectors, err := c.records.QueryCollectors(ctx, store.CollectorQuery{Available: true, Located: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: query collectors")
	}
	snap.AvailableCollectors = len(collectors)

	return snap, nil
}
