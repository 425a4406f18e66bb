package matching

import (
	"sort"

	"github.com/isuku/isuku-dispatch/internal/geo"
	"github.com/isuku/isuku-dispatch/internal/model"
)

// CollectorMatch is a collector and its distance from a query point, rounded
// to two decimals.
type CollectorMatch struct {
	Collector  model.Collector `json:"collector"`
	DistanceKM float64         `json:"distance_km"`
}

// PickupMatch is a pickup request and its distance from a query point,
// rounded to two decimals.
type PickupMatch struct {
	Pickup     model.PickupRequest `json:"pickup"`
	DistanceKM float64             `json:"distance_km"`
}

// EffectiveRadius returns the radius used to decide whether c is near enough
// to a point. The collector's own service radius wins whenever it is
// positive, even if it is larger than fallbackKM.
func EffectiveRadius(c model.Collector, fallbackKM float64) float64 {
	if c.ServiceRadiusKM > 0 {
		return c.ServiceRadiusKM
	}
	return fallbackKM
}

// RankCollectors keeps the available, located collectors within their
// effective radius of (lat, lon) and orders them closest first. Equal
// distances keep input order.
func RankCollectors(lat, lon float64, collectors []model.Collector, maxDistanceKM float64) []CollectorMatch {
	type scored struct {
		c model.Collector
		d float64
	}
	var kept []scored
	for _, c := range collectors {
		if !c.Available || !c.HasLocation() {
			continue
		}
		clat, clon := c.Coords()
		d := geo.DistanceKM(lat, lon, clat, clon)
		if d <= EffectiveRadius(c, maxDistanceKM) {
			kept = append(kept, scored{c: c, d: d})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].d < kept[j].d })

	out := make([]CollectorMatch, len(kept))
	for i, k := range kept {
		out[i] = CollectorMatch{Collector: k.c, DistanceKM: geo.RoundKM(k.d)}
	}
	return out
}

// RankPickups keeps the open, located, unassigned pickups within
// maxDistanceKM of (lat, lon) and orders them closest first.
func RankPickups(lat, lon float64, pickups []model.PickupRequest, maxDistanceKM float64) []PickupMatch {
	type scored struct {
		p model.PickupRequest
		d float64
	}
	var kept []scored
	for _, p := range pickups {
		if !p.Status.IsOpen() || !p.HasLocation() || p.Assigned() {
			continue
		}
		plat, plon := p.Coords()
		d := geo.DistanceKM(lat, lon, plat, plon)
		if d <= maxDistanceKM {
			kept = append(kept, scored{p: p, d: d})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].d < kept[j].d })

	out := make([]PickupMatch, len(kept))
	for i, k := range kept {
		out[i] = PickupMatch{Pickup: k.p, DistanceKM: geo.RoundKM(k.d)}
	}
	return out
}

func roundedDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.RoundKM(geo.DistanceKM(lat1, lon1, lat2, lon2))
}
