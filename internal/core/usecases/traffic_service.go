package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/tracking"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

// TrafficEstimator reads nearby alerts and turns them into an ETA factor.
type TrafficEstimator struct {
	alerts ports.AlertStore
	loc    *time.Location
	logger *slog.Logger
}

// NewTrafficEstimator creates a TrafficEstimator. Peak hours are evaluated in loc (UTC when nil).
func NewTrafficEstimator(alerts ports.AlertStore, loc *time.Location, logger *slog.Logger) *TrafficEstimator {
	if loc == nil {
		loc = time.UTC
	}
	return &TrafficEstimator{alerts: alerts, loc: loc, logger: logging.OrDefault(logger)}
}

// EstimateFactor returns the traffic factor at point. A failing alert store
// degrades to the neutral factor instead of failing the update.
func (e *TrafficEstimator) EstimateFactor(ctx context.Context, point domain.GeoPoint, asOf time.Time) float64 {
	alerts, err := e.alerts.FindActiveNear(ctx, point, tracking.AlertRadius, asOf)
	if err != nil {
		e.logger.Warn("alert lookup failed, using neutral traffic factor", "error", err)
		return tracking.MinFactor
	}
	f := tracking.TrafficFactor(point, asOf, alerts, e.loc)
	metrics.TrafficFactor.Observe(f)
	return f
}
