package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safiri/internal/adapters/gtfsrt"
	"github.com/samirrijal/safiri/internal/core/domain"
)

// VehiclePositionsHandler serves the GTFS-Realtime vehicle positions feed of
// live trips. ?format=json returns the protobuf JSON form.
func VehiclePositionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trips, err := deps.Trips.GetActiveTrips(c.UserContext(), domain.TripFilter{
			RouteID:  c.Query("route_id"),
			Statuses: []domain.TripStatus{domain.StatusBoarding, domain.StatusActive},
		})
		if err != nil {
			return respondError(c, err)
		}
		feed := gtfsrt.VehiclePositions(trips, time.Now())

		c.Set("Cache-Control", "no-cache")
		if c.Query("format") == "json" {
			data, err := gtfsrt.EncodeJSON(feed)
			if err != nil {
				return respondError(c, err)
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(data)
		}
		data, err := gtfsrt.Encode(feed)
		if err != nil {
			return respondError(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/x-protobuf")
		return c.Send(data)
	}
}
