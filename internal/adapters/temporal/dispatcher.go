// Package temporal hands trip effects and failed writes to Temporal workflows.
package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/workflows"
)

// DefaultTaskQueue is the queue cmd/worker polls.
const DefaultTaskQueue = "trip-effects"

// WorkflowStarter is the part of client.Client used here.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dial connects to the Temporal frontend with SDK logs routed through slog.
func Dial(hostPort, namespace string, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    newLogAdapter(logging.OrDefault(logger)),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s: %w", hostPort, err)
	}
	return c, nil
}

// Dispatcher implements ports.EffectDispatcher and ports.Reconciler.
type Dispatcher struct {
	starter WorkflowStarter
	queue   string
	logger  *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(starter WorkflowStarter, taskQueue string, logger *slog.Logger) *Dispatcher {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Dispatcher{starter: starter, queue: taskQueue, logger: logging.OrDefault(logger)}
}

// Dispatch starts a TripEffectsWorkflow for one commit.
func (d *Dispatcher) Dispatch(ctx context.Context, tripID string, effects []domain.Effect) error {
	if len(effects) == 0 {
		return nil
	}
	id := "trip-effects-" + tripID + "-" + uuid.NewString()
	_, err := d.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: d.queue,
	}, workflows.TripEffectsWorkflow, workflows.TripEffectsInput{TripID: tripID, Effects: effects})
	if err != nil {
		return fmt.Errorf("start effects workflow for trip %s: %w", tripID, err)
	}
	d.logger.Debug("effects workflow started", "trip_id", tripID, "workflow_id", id, "effects", len(effects))
	return nil
}

// Enqueue starts a ReconcileTripWorkflow keyed on trip id and version, so a
// repeated enqueue of the same version joins the running workflow.
func (d *Dispatcher) Enqueue(ctx context.Context, trip *domain.Trip) error {
	id := ReconcileWorkflowID(trip.ID, trip.Version)
	_, err := d.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: d.queue,
	}, workflows.ReconcileTripWorkflow, workflows.ReconcileTripInput{Trip: *trip})
	if err != nil {
		return fmt.Errorf("start reconcile workflow for trip %s: %w", trip.ID, err)
	}
	d.logger.Info("trip queued for reconciliation", "trip_id", trip.ID, "version", trip.Version, "workflow_id", id)
	return nil
}

// ReconcileWorkflowID is "reconcile-<trip_id>-v<version>".
func ReconcileWorkflowID(tripID string, version int64) string {
	return "reconcile-" + tripID + "-v" + strconv.FormatInt(version, 10)
}
