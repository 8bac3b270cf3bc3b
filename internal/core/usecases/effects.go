package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

// EffectApplier applies post-commit effects in-process.
// Every effect is attempted; failures are logged and joined.
type EffectApplier struct {
	fleet    ports.FleetRegistry
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewEffectApplier creates a new EffectApplier. notifier may be nil.
func NewEffectApplier(fleet ports.FleetRegistry, notifier ports.Notifier, logger *slog.Logger) *EffectApplier {
	return &EffectApplier{fleet: fleet, notifier: notifier, logger: logging.OrDefault(logger)}
}

// Dispatch implements ports.EffectDispatcher.
func (a *EffectApplier) Dispatch(ctx context.Context, tripID string, effects []domain.Effect) error {
	var errs []error
	for _, eff := range effects {
		if err := a.Apply(ctx, eff); err != nil {
			metrics.EffectFailures.WithLabelValues(string(eff.Kind)).Inc()
			a.logger.Warn("effect failed", "trip_id", tripID, "kind", eff.Kind, "subject_id", eff.SubjectID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply runs a single effect.
func (a *EffectApplier) Apply(ctx context.Context, eff domain.Effect) error {
	switch eff.Kind {
	case domain.EffectVehiclePresence:
		return a.fleet.SetVehiclePresence(ctx, eff.SubjectID, eff.Presence)
	case domain.EffectDriverPresence:
		return a.fleet.SetDriverPresence(ctx, eff.SubjectID, eff.Presence)
	case domain.EffectNotify:
		if a.notifier == nil {
			return nil
		}
		return a.notifier.Notify(ctx, eff.SubjectID, eff.Notice, eff.Payload)
	default:
		return fmt.Errorf("unknown effect kind %q", eff.Kind)
	}
}

// MultiNotifier fans a notice out to several notifiers.
type MultiNotifier []ports.Notifier

// Notify implements ports.Notifier.
func (m MultiNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, userID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
