package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/safiri/internal/adapters/auth"
	"github.com/samirrijal/safiri/internal/adapters/http"
	natsadapter "github.com/samirrijal/safiri/internal/adapters/nats"
	"github.com/samirrijal/safiri/internal/adapters/postgres"
	"github.com/samirrijal/safiri/internal/adapters/rabbitmq"
	"github.com/samirrijal/safiri/internal/adapters/temporal"
	"github.com/samirrijal/safiri/internal/adapters/valkey"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/realtime"
	"github.com/samirrijal/safiri/internal/core/usecases"
	"github.com/samirrijal/safiri/internal/pkg/config"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("safiri-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("auth: %v (set SAFIRI_AUTH_JWT_SECRET)", err)
	}
	loc, err := cfg.Tracking.Location()
	if err != nil {
		log.Fatalf("tracking timezone: %v", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(),
		postgres.WithMaxConns(cfg.Database.MaxConns),
		postgres.WithMaxConnIdleTime(cfg.Database.MaxConnIdle),
	)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Cache is optional; routes are read straight from postgres without it.
	var routeCache ports.CacheService
	cache, err := valkey.New(valkey.Options{
		Addr:     cfg.Valkey.Addr,
		Prefix:   cfg.Valkey.Prefix,
		LocalTTL: cfg.Valkey.LocalTTL,
	})
	if err != nil {
		logger.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		routeCache = cache
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Drain()
	}

	var notifiers usecases.MultiNotifier
	rabbit, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, notices stay in-app", "error", err)
	} else {
		defer rabbit.Close()
		notifiers = append(notifiers, rabbit)
	}

	tripRepo := postgres.NewTripRepo(db)
	fleetRepo := postgres.NewFleetRepo(db)
	routeSvc := usecases.NewRouteService(postgres.NewRouteRepo(db), routeCache, cfg.Tracking.RouteCacheTTL)
	traffic := usecases.NewTrafficEstimator(postgres.NewAlertRepo(db), loc, logger)

	// hub is assigned below; notices are only sent after the first commit
	var hub *realtime.Hub
	notifiers = append(notifiers, ports.NotifierFunc(func(ctx context.Context, userID, kind string, payload map[string]any) error {
		return hub.Notify(ctx, userID, kind, payload)
	}))

	opts := []usecases.Option{
		usecases.WithLogger(logger),
		usecases.WithStoreTimeout(cfg.Tracking.StoreTimeout),
		usecases.WithRetryBackoff(cfg.Tracking.RetryBackoff),
	}
	var tc client.Client
	if cfg.Tracking.EffectsMode == "temporal" {
		tc, err = temporal.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace, logger)
		if err != nil {
			log.Fatalf("temporal: %v", err)
		}
		defer tc.Close()
		dispatcher := temporal.NewDispatcher(tc, cfg.Temporal.TaskQueue, logger)
		opts = append(opts, usecases.WithEffectDispatcher(dispatcher), usecases.WithReconciler(dispatcher))
	} else {
		opts = append(opts, usecases.WithEffectDispatcher(usecases.NewEffectApplier(fleetRepo, notifiers, logger)))
	}

	trips := usecases.NewTripManager(tripRepo, routeSvc, fleetRepo, traffic, opts...)
	hub = realtime.NewHub(trips, verifier, fleetRepo, logger)
	trips.RegisterObserver(hub)

	var publisher *natsadapter.Publisher
	var subscriber *natsadapter.Subscriber
	if nc != nil {
		if publisher, err = natsadapter.NewPublisher(nc, logger); err != nil {
			logger.Warn("snapshot mirror disabled", "error", err)
			publisher = nil
		} else {
			trips.RegisterObserver(publisher)
		}
		if subscriber, err = natsadapter.NewSubscriber(nc, logger); err != nil {
			logger.Warn("device telemetry disabled", "error", err)
			subscriber = nil
		} else if err := subscriber.SubscribeTelemetry(ctx, hub.ApplyTelemetry); err != nil {
			logger.Warn("telemetry subscription failed", "error", err)
		}
	}

	deps := &http.Dependencies{
		Trips:    trips,
		Routes:   routeSvc,
		Hub:      hub,
		Identity: verifier,
		NATS:     nc,
		DB:       db,
		Cache:    cache,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024,
		AppName:      "Safiri API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps, http.RouterConfig{})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr, "effects", cfg.Tracking.EffectsMode)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received, draining connections", "signal", sig.String())

	if subscriber != nil {
		subscriber.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	if publisher != nil {
		publisher.Flush(shutdownCtx)
	}

	logger.Info("server stopped")
}
