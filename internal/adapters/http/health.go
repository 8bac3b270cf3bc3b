package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint. Set with -ldflags at build time.
var Version = "dev"

const readyTimeout = 3 * time.Second

var errNATSDisconnected = errors.New("disconnected")

// probe checks one backing service. A nil check means it was not configured.
type probe struct {
	name  string
	check func(context.Context) error
}

func probes(deps *Dependencies) []probe {
	ps := []probe{{name: "database"}, {name: "nats"}, {name: "cache"}}
	if deps.DB != nil {
		ps[0].check = deps.DB.Pool.Ping
	}
	if deps.NATS != nil {
		ps[1].check = func(context.Context) error {
			if !deps.NATS.IsConnected() {
				return errNATSDisconnected
			}
			return nil
		}
	}
	if deps.Cache != nil {
		ps[2].check = deps.Cache.Ping
	}
	return ps
}

// HealthHandler is the liveness probe. It never touches backing services.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
		}
		if deps.Hub != nil {
			body["ws_connections"] = deps.Hub.Connections()
		}
		return c.JSON(body)
	}
}

// ReadyHandler answers 503 when a configured dependency fails its probe.
// Unconfigured ones are listed but do not block readiness.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	ps := probes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(ps))
		ready := true
		for _, p := range ps {
			if p.check == nil {
				checks[p.name] = "not configured"
				continue
			}
			if err := p.check(ctx); err != nil {
				checks[p.name] = "error: " + err.Error()
				ready = false
				LoggerFromCtx(ctx).Warn("readiness probe failed", "dependency", p.name, "error", err)
				continue
			}
			checks[p.name] = "ok"
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
