package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// RouterConfig tunes the middleware stack. Zero values use the defaults.
type RouterConfig struct {
	RateLimit int
}

// SetupRoutes mounts the REST, GraphQL, docs and socket surfaces on app.
func SetupRoutes(app *fiber.App, deps *Dependencies, cfg RouterConfig) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}

	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Next:  func(c *fiber.Ctx) bool { return c.Path() == "/ws" },
		Level: compress.LevelBestSpeed,
	}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())
	app.Use(rateLimiter(cfg.RateLimit))
	app.Use(securityHeaders)
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// only reads run under a deadline
	read := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	v1 := app.Group("/v1")
	v1.Get("/health", HealthHandler(deps))
	v1.Get("/ready", ReadyHandler(deps))
	v1.Get("/trips", read(ListTripsHandler(deps)))
	v1.Get("/trips/:id", read(GetTripHandler(deps)))
	v1.Get("/routes/:id", read(GetRouteHandler(deps)))
	v1.Get("/routes/:id/stages", read(RouteStagesHandler(deps)))
	v1.Get("/routes/:id/trips", read(RouteTripsHandler(deps)))
	v1.Get("/feeds/vehicle-positions", read(VehiclePositionsHandler(deps)))

	auth := AuthMiddleware(deps.Identity)
	v1.Post("/trips", auth, StartTripHandler(deps))
	v1.Post("/trips/:id/transitions", auth, TransitionHandler(deps))
	v1.Post("/trips/:id/incidents", auth, IncidentHandler(deps))
	v1.Post("/trips/:id/location", auth, LocationHandler(deps))
	v1.Post("/trips/:id/occupancy", auth, OccupancyHandler(deps))

	app.Post("/graphql", read(GraphQLHandler(deps)))
	SetupDocs(app)

	app.Use("/ws", WebSocketUpgrade(deps))
	app.Get("/ws", websocket.New(WebSocketHandler(deps.Hub)))
}

// rateLimiter allows max requests a minute per caller: per token when one
// is sent, per IP otherwise.
func rateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if tok := bearerToken(c); tok != "" {
				return "tok:" + tok
			}
			return "ip:" + c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			switch c.Path() {
			case "/metrics", "/ws", "/v1/health":
				return true
			}
			return false
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
		},
	})
}

func securityHeaders(c *fiber.Ctx) error {
	h := &c.Response().Header
	h.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	h.Set(fiber.HeaderXFrameOptions, "DENY")
	h.Set(fiber.HeaderReferrerPolicy, "no-referrer")
	h.Set("X-API-Version", "1")
	return c.Next()
}
