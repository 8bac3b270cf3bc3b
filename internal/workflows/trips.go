// Package workflows runs trip side effects and persistence reconciliation on Temporal.
package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// TripEffectsInput is the input for TripEffectsWorkflow.
type TripEffectsInput struct {
	TripID  string
	Effects []domain.Effect
}

// TripEffectsWorkflow applies every effect of one commit. Effects are
// independent, so one failing does not stop the others.
func TripEffectsWorkflow(ctx workflow.Context, in TripEffectsInput) error {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	})

	futures := make([]workflow.Future, len(in.Effects))
	for i, eff := range in.Effects {
		futures[i] = workflow.ExecuteActivity(ctx, ApplyEffectActivity, eff)
	}

	var errs []error
	for i, f := range futures {
		if err := f.Get(ctx, nil); err != nil {
			logger.Warn("effect failed", "tripID", in.TripID, "kind", in.Effects[i].Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReconcileTripInput is the input for ReconcileTripWorkflow.
type ReconcileTripInput struct {
	Trip domain.Trip
}

// ReconcileTripWorkflow keeps retrying a trip write for up to a day.
func ReconcileTripWorkflow(ctx workflow.Context, in ReconcileTripInput) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    10 * time.Second,
		ScheduleToCloseTimeout: 24 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
		},
	})

	if err := workflow.ExecuteActivity(ctx, SaveTripActivity, in.Trip).Get(ctx, nil); err != nil {
		return err
	}
	workflow.GetLogger(ctx).Info("trip reconciled", "tripID", in.Trip.ID, "version", in.Trip.Version)
	return nil
}
