package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/safiri/internal/adapters/postgres"
	"github.com/samirrijal/safiri/internal/adapters/rabbitmq"
	"github.com/samirrijal/safiri/internal/adapters/temporal"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/usecases"
	"github.com/samirrijal/safiri/internal/pkg/config"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/workflows"
)

func main() {
	cfg, err := config.Load("safiri-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(),
		postgres.WithMaxConns(cfg.Database.MaxConns),
		postgres.WithMaxConnIdleTime(cfg.Database.MaxConnIdle),
	)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The worker has no sockets, so notices only go out through the broker.
	var notifier ports.Notifier
	rabbit, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, notify effects are skipped", "error", err)
	} else {
		defer rabbit.Close()
		notifier = rabbit
	}

	c, err := temporal.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace, logger)
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.TripEffectsWorkflow)
	w.RegisterWorkflow(workflows.ReconcileTripWorkflow)
	w.RegisterActivity(&workflows.TripActivities{
		Effects: usecases.NewEffectApplier(postgres.NewFleetRepo(db), notifier, logger),
		Store:   postgres.NewTripRepo(db),
	})

	logger.Info("trip worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
