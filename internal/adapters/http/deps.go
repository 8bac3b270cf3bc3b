package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safiri/internal/adapters/postgres"
	"github.com/samirrijal/safiri/internal/adapters/valkey"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/realtime"
	"github.com/samirrijal/safiri/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// DB, NATS and Cache are optional and only consulted by readiness checks.
type Dependencies struct {
	Trips    *usecases.TripManager
	Routes   *usecases.RouteService
	Hub      *realtime.Hub
	Identity ports.Identity
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
}
