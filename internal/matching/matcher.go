// Package matching ranks collectors and pickup requests by distance and
// binds the nearest available collector to a pickup.
package matching

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/internal/store"
)

const (
	// DefaultSearchRadiusKM is the radius for interactive nearby searches.
	DefaultSearchRadiusKM = 10.0
	// AutoAssignRadiusKM is the wider radius auto-assignment searches.
	AutoAssignRadiusKM = 15.0
)

// ErrMissingLocation is returned when a query point has no coordinates.
var ErrMissingLocation = eris.New("matching: location not set")

// Records is the subset of the store the matcher reads and claims through.
type Records interface {
	QueryCollectors(ctx context.Context, q store.CollectorQuery) ([]model.Collector, error)
	QueryPickups(ctx context.Context, q store.PickupQuery) ([]model.PickupRequest, error)
	ClaimPickup(ctx context.Context, c store.Claim) (*model.Assignment, error)
}

// Matcher runs proximity searches and auto-assignment against Records.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	records          Records
	metrics          *Metrics
	autoAssignRadius float64
	log              *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMetrics records search and assignment counters on m.
func WithMetrics(m *Metrics) Option {
	return func(mt *Matcher) { mt.metrics = m }
}

// WithAutoAssignRadius overrides AutoAssignRadiusKM. Non-positive values are
// ignored.
func WithAutoAssignRadius(km float64) Option {
	return func(mt *Matcher) {
		if km > 0 {
			mt.autoAssignRadius = km
		}
	}
}

// New returns a Matcher over records.
func New(records Records, opts ...Option) *Matcher {
	m := &Matcher{
		records:          records,
		autoAssignRadius: AutoAssignRadiusKM,
		log:              zap.L().With(zap.String("component", "matching")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindNearbyCollectors returns available collectors whose effective radius
// covers (lat, lon), closest first.
func (m *Matcher) FindNearbyCollectors(ctx context.Context, lat, lon, maxDistanceKM float64) ([]CollectorMatch, error) {
	collectors, err := m.records.QueryCollectors(ctx, store.CollectorQuery{Available: true, Located: true})
	if err != nil {
		return nil, err
	}
	matches := RankCollectors(lat, lon, collectors, maxDistanceKM)
	m.metrics.observeSearch("collectors", len(matches))
	return matches, nil
}

// FindNearbyPickups returns open, unassigned pickups within maxDistanceKM of
// (lat, lon), closest first.
func (m *Matcher) FindNearbyPickups(ctx context.Context, lat, lon, maxDistanceKM float64) ([]PickupMatch, error) {
	pickups, err := m.records.QueryPickups(ctx, store.PickupQuery{
		Statuses:   model.OpenStatuses,
		Located:    true,
		Unassigned: true,
		Within:     &store.Area{Latitude: lat, Longitude: lon, RadiusKM: maxDistanceKM},
	})
	if err != nil {
		return nil, err
	}
	matches := RankPickups(lat, lon, pickups, maxDistanceKM)
	m.metrics.observeSearch("pickups", len(matches))
	return matches, nil
}

// CollectorsNear is FindNearbyCollectors for an optional location.
func (m *Matcher) CollectorsNear(ctx context.Context, loc model.Location, maxDistanceKM float64) ([]CollectorMatch, error) {
	if !loc.HasLocation() {
		return nil, ErrMissingLocation
	}
	lat, lon := loc.Coords()
	return m.FindNearbyCollectors(ctx, lat, lon, maxDistanceKM)
}

// PickupsNear is FindNearbyPickups for an optional location.
func (m *Matcher) PickupsNear(ctx context.Context, loc model.Location, maxDistanceKM float64) ([]PickupMatch, error) {
	if !loc.HasLocation() {
		return nil, ErrMissingLocation
	}
	lat, lon := loc.Coords()
	return m.FindNearbyPickups(ctx, lat, lon, maxDistanceKM)
}

// AutoAssignCollector claims the closest available collector for p. It
// returns false without touching p when p has no location, when no collector
// is in range, or when another caller claimed p first. Candidates that turn
// unavailable before the claim are skipped in favour of the next closest.
// On success p is updated in place to the stored state.
func (m *Matcher) AutoAssignCollector(ctx context.Context, p *model.PickupRequest) (bool, error) {
	log := m.log.With(zap.Int64("pickup_id", p.ID))

	if !p.HasLocation() {
		m.metrics.observeAssignment(OutcomeNoLocation)
		return false, nil
	}
	lat, lon := p.Coords()

	candidates, err := m.FindNearbyCollectors(ctx, lat, lon, m.autoAssignRadius)
	if err != nil {
		m.metrics.observeAssignment(OutcomeError)
		return false, err
	}

	for _, cand := range candidates {
		dist := cand.DistanceKM
		_, err := m.records.ClaimPickup(ctx, store.Claim{
			PickupID:    p.ID,
			CollectorID: cand.Collector.ID,
			DistanceKM:  &dist,
			Method:      model.AssignmentMethodAuto,
		})
		switch {
		case err == nil:
			p.AssignTo(cand.Collector.ID)
			m.metrics.observeAssignment(OutcomeAssigned)
			log.Info("pickup auto-assigned",
				zap.Int64("collector_id", cand.Collector.ID),
				zap.Float64("distance_km", dist),
			)
			return true, nil
		case eris.Is(err, store.ErrCollectorUnavailable):
			m.metrics.observeSkip()
			log.Debug("collector became unavailable, trying next",
				zap.Int64("collector_id", cand.Collector.ID),
			)
		case eris.Is(err, store.ErrPickupAssigned):
			m.metrics.observeAssignment(OutcomeConflict)
			log.Info("pickup already assigned by another request")
			return false, nil
		default:
			m.metrics.observeAssignment(OutcomeError)
			return false, err
		}
	}

	m.metrics.observeAssignment(OutcomeNoCandidate)
	log.Debug("no collector in range", zap.Float64("radius_km", m.autoAssignRadius))
	return false, nil
}

// AssignCollector claims p for a specific collector on the collector's own
// initiative. The distance is recorded when both sides are located.
func (m *Matcher) AssignCollector(ctx context.Context, p *model.PickupRequest, c model.Collector) (*model.Assignment, error) {
	var dist *float64
	if p.HasLocation() && c.HasLocation() {
		plat, plon := p.Coords()
		clat, clon := c.Coords()
		d := roundedDistance(plat, plon, clat, clon)
		dist = &d
	}
	a, err := m.records.ClaimPickup(ctx, store.Claim{
		PickupID:    p.ID,
		CollectorID: c.ID,
		DistanceKM:  dist,
		Method:      model.AssignmentMethodManual,
	})
	if err != nil {
		return nil, err
	}
	p.AssignTo(c.ID)
	m.log.Info("pickup assigned by collector",
		zap.Int64("pickup_id", p.ID),
		zap.Int64("collector_id", c.ID),
	)
	return a, nil
}
