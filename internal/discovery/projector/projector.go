// Package projector assembles backend branch payloads, the current fix and
// the schedule evaluator into render-ready collections.
package projector

import (
	"sort"

	"github.com/google/uuid"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geo"
	"github.com/example/cafescout/internal/discovery/schedule"
)

// Projector builds CafeRecord lists. It holds only ambient collaborators;
// branch data and the fix are passed per projection so a refined fix always
// produces freshly computed distances.
type Projector struct {
	clock        domain.Clock
	fallbackLogo string
}

// New constructs a projector. fallbackLogo is used for stores without one.
func New(clock domain.Clock, fallbackLogo string) *Projector {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Projector{clock: clock, fallbackLogo: fallbackLogo}
}

// Project converts branches to cafe records. Branches without coordinates
// are dropped: they cannot be placed on a map and must not collapse to (0,0).
// DistanceKm is set only when a fix exists.
func (p *Projector) Project(branches []domain.Branch, stores map[uuid.UUID]domain.Store, fix *domain.GeoFix) []domain.CafeRecord {
	now := p.clock.Now()
	cafes := make([]domain.CafeRecord, 0, len(branches))
	for _, branch := range branches {
		if branch.Latitude == nil || branch.Longitude == nil {
			continue
		}

		cafe := domain.CafeRecord{
			ID:          branch.ID,
			StoreID:     branch.StoreID,
			Name:        branch.Name,
			Address:     branch.Address,
			Latitude:    *branch.Latitude,
			Longitude:   *branch.Longitude,
			Rating:      branch.AverageRating,
			RatingText:  geo.RatingText(branch.AverageRating),
			Tags:        branch.Tags,
			IsOpenNow:   schedule.IsOpenNow(branch.Schedule, now),
			HasSchedule: len(branch.Schedule) > 0,
			LogoURL:     p.fallbackLogo,
		}
		if store, ok := stores[branch.StoreID]; ok && store.LogoURL != "" {
			cafe.LogoURL = store.LogoURL
		}
		if fix != nil {
			km := geo.HaversineKm(fix.Latitude, fix.Longitude, cafe.Latitude, cafe.Longitude)
			cafe.DistanceKm = &km
			cafe.DistanceText = geo.FormatKm(km) + " km"
		}
		cafes = append(cafes, cafe)
	}
	return cafes
}

// Markers returns the marker coordinate list for the projected cafes.
func Markers(cafes []domain.CafeRecord) []domain.GeoPoint {
	points := make([]domain.GeoPoint, 0, len(cafes))
	for _, cafe := range cafes {
		points = append(points, cafe.Point())
	}
	return points
}

// Facets returns the distinct store id/name pairs present among the given
// branches, sorted by name, for the UI filter chips.
func Facets(branches []domain.Branch, stores map[uuid.UUID]domain.Store) []domain.StoreFacet {
	seen := make(map[uuid.UUID]struct{}, len(branches))
	facets := make([]domain.StoreFacet, 0, len(stores))
	for _, branch := range branches {
		if _, ok := seen[branch.StoreID]; ok {
			continue
		}
		seen[branch.StoreID] = struct{}{}
		facet := domain.StoreFacet{ID: branch.StoreID}
		if store, ok := stores[branch.StoreID]; ok {
			facet.Name = store.Name
		}
		facets = append(facets, facet)
	}
	sort.Slice(facets, func(i, j int) bool { return facets[i].Name < facets[j].Name })
	return facets
}
