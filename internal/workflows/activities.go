package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
)

// Activity names, as registered from TripActivities.
const (
	ApplyEffectActivity = "ApplyEffect"
	SaveTripActivity    = "SaveTrip"
)

// EffectApplier runs one post-commit effect.
type EffectApplier interface {
	Apply(ctx context.Context, eff domain.Effect) error
}

// TripActivities holds the activity implementations for trip workflows.
type TripActivities struct {
	Effects EffectApplier
	Store   ports.TripStore
}

// ApplyEffect applies a presence change or a notice.
func (a *TripActivities) ApplyEffect(ctx context.Context, eff domain.Effect) error {
	activity.GetLogger(ctx).Debug("applying effect", "kind", eff.Kind, "subject_id", eff.SubjectID)
	if err := a.Effects.Apply(ctx, eff); err != nil {
		return fmt.Errorf("apply %s for %s: %w", eff.Kind, eff.SubjectID, err)
	}
	return nil
}

// SaveTrip writes a trip that failed to persist in-line. The store ignores
// versions it already has.
func (a *TripActivities) SaveTrip(ctx context.Context, trip domain.Trip) error {
	if err := a.Store.Save(ctx, &trip); err != nil {
		return fmt.Errorf("save trip %s v%d: %w", trip.ID, trip.Version, err)
	}
	return nil
}
