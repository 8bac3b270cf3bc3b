package ports

import (
	"context"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// TripStore is the durable source of truth for trips.
// Save must be idempotent on trip id + version.
type TripStore interface {
	Load(ctx context.Context, tripID string) (*domain.Trip, error)
	Save(ctx context.Context, trip *domain.Trip) error
	FindNonTerminalByVehicle(ctx context.Context, vehicleID string) (*domain.Trip, error)
	FindNonTerminalByDriver(ctx context.Context, driverID string) (*domain.Trip, error)
	List(ctx context.Context, filter domain.TripFilter) ([]domain.Trip, error)
}

// AlertStore reads crowd-sourced hazard alerts.
type AlertStore interface {
	FindActiveNear(ctx context.Context, point domain.GeoPoint, radiusMeters float64, asOf time.Time) ([]domain.Alert, error)
}

// RouteDirectory reads static route definitions.
type RouteDirectory interface {
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
	GetStages(ctx context.Context, routeID string) ([]domain.Stage, error)
}

// FleetRegistry reads vehicles and drivers and records their presence.
type FleetRegistry interface {
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	GetDriver(ctx context.Context, driverID string) (*domain.Driver, error)
	SetVehiclePresence(ctx context.Context, vehicleID string, p domain.Presence) error
	SetDriverPresence(ctx context.Context, driverID string, p domain.Presence) error
}
