// Package tracking holds the pure geospatial and classification algorithms
// applied to every trip update.
package tracking

import (
	"math"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/pkg/geospatial"
)

// ProximityThreshold is the farthest a vehicle may be from a stage and still match it.
const ProximityThreshold = 500.0 // meters

// Unmatched is returned by FindCurrentStage when no stage is close enough.
const Unmatched = -1

// FindCurrentStage returns the index of the stage nearest to point, or
// Unmatched if the nearest one is farther than ProximityThreshold.
// Stages must be ordered by sequence; ties resolve to the earliest stage.
func FindCurrentStage(point domain.GeoPoint, stages []domain.Stage) int {
	best := Unmatched
	bestDist := math.Inf(1)
	for i, s := range stages {
		d := Distance(point, s.Location)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == Unmatched || bestDist > ProximityThreshold {
		return Unmatched
	}
	return best
}

// AdvanceStage applies the monotonic clamp to a matcher result. It returns
// the new stage index and whether the match went backwards.
func AdvanceStage(current, matched int) (next int, regressed bool) {
	switch {
	case matched == Unmatched:
		return current, false
	case matched < current:
		return current, true
	default:
		return matched, false
	}
}

// Distance is the great-circle distance in meters between two points.
func Distance(a, b domain.GeoPoint) float64 {
	return geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}
