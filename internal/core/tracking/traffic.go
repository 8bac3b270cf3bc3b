package tracking

import (
	"math"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
)

const (
	MinFactor = 1.0
	MaxFactor = 3.0

	// AlertRadius bounds which alerts affect a point.
	AlertRadius = 2000.0 // meters
	// PeakMultiplier applies during the morning and evening peaks.
	PeakMultiplier = 1.4
)

var severityWeights = map[domain.Severity]float64{
	domain.SeverityLow:      1.1,
	domain.SeverityMedium:   1.3,
	domain.SeverityHigh:     1.6,
	domain.SeverityCritical: 2.0,
}

// SeverityWeight returns the delay multiplier of one alert severity.
// Unknown severities weigh 1.
func SeverityWeight(s domain.Severity) float64 {
	if w, ok := severityWeights[s]; ok {
		return w
	}
	return 1
}

// IsPeak reports whether t falls in 07:00–09:59 or 17:00–19:59 in loc.
func IsPeak(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	h := t.Hour()
	return (h >= 7 && h <= 9) || (h >= 17 && h <= 19)
}

// TrafficFactor computes the multiplicative ETA inflation at point.
// Alerts that are inactive, expired at asOf or beyond AlertRadius are ignored,
// so callers may pass an unfiltered list. The result is within [MinFactor, MaxFactor].
func TrafficFactor(point domain.GeoPoint, asOf time.Time, alerts []domain.Alert, loc *time.Location) float64 {
	factor := 1.0
	for _, a := range alerts {
		if a.Status != domain.AlertActive {
			continue
		}
		if !a.ExpiresAt.IsZero() && !a.ExpiresAt.After(asOf) {
			continue
		}
		if Distance(point, a.Location) > AlertRadius {
			continue
		}
		factor *= SeverityWeight(a.Severity)
	}
	if IsPeak(asOf, loc) {
		factor *= PeakMultiplier
	}
	return math.Min(math.Max(factor, MinFactor), MaxFactor)
}
