package tracking

import (
	"fmt"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// Classify maps occupancy over capacity to a crowd level using half-open
// utilization bands of 20 percentage points.
func Classify(occupancy, capacity int) (domain.CrowdLevel, error) {
	if capacity <= 0 {
		return "", fmt.Errorf("%w: capacity %d", domain.ErrInvalidCapacity, capacity)
	}
	// integer arithmetic keeps the band edges exact.
	pct := occupancy * 100
	switch {
	case pct < 20*capacity:
		return domain.CrowdEmpty, nil
	case pct < 40*capacity:
		return domain.CrowdLow, nil
	case pct < 60*capacity:
		return domain.CrowdHalf, nil
	case pct < 80*capacity:
		return domain.CrowdHigh, nil
	case pct < 100*capacity:
		return domain.CrowdFull, nil
	default:
		return domain.CrowdStanding, nil
	}
}
