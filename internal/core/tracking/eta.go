package tracking

import (
	"math"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
)

const (
	// DefaultSpeedKmh is assumed when the device reports no speed.
	DefaultSpeedKmh = 30.0
	// DwellBuffer inflates travel time for stops and signals.
	DwellBuffer = 1.2
	// MinETASeconds is the floor of every prediction.
	MinETASeconds = 60.0
)

// PredictStageETAs estimates the arrival at every stage after currentIdx.
// Distance accumulates from loc to the next stage and then along consecutive
// stage segments. With currentIdx of Unmatched every stage is upcoming.
func PredictStageETAs(loc domain.Location, stages []domain.Stage, currentIdx int, factor float64, now time.Time) []domain.StageETA {
	start := currentIdx + 1
	if start < 0 {
		start = 0
	}
	if start >= len(stages) {
		return []domain.StageETA{}
	}
	if factor < MinFactor {
		factor = MinFactor
	}

	speed := loc.SpeedKmh
	if speed <= 0 {
		speed = DefaultSpeedKmh
	}
	mps := speed * 1000 / 3600

	etas := make([]domain.StageETA, 0, len(stages)-start)
	prev := loc.Point
	cumulative := 0.0
	for i := start; i < len(stages); i++ {
		cumulative += Distance(prev, stages[i].Location)
		prev = stages[i].Location

		secs := math.Max(cumulative/mps*factor*DwellBuffer, MinETASeconds)
		etas = append(etas, domain.StageETA{
			StageIndex:        i,
			StageName:         stages[i].Name,
			ETA:               now.Add(time.Duration(secs * float64(time.Second))),
			Minutes:           max(1, int(math.Round(secs/60))),
			DistanceRemaining: cumulative,
		})
	}
	return etas
}

// PathLength sums the segment lengths of an ordered list of points.
func PathLength(points []domain.GeoPoint) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}
