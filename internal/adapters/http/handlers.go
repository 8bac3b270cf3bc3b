package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/usecases"
)

// ---- Queries ----

// parseStatuses reads a comma-separated status list.
func parseStatuses(raw string) ([]domain.TripStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domain.TripStatus
	for _, part := range strings.Split(raw, ",") {
		s := domain.TripStatus(strings.TrimSpace(part))
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, s)
	}
	return out, nil
}

// ListTripsHandler lists trips. Without a status filter only open trips are returned.
func ListTripsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		statuses, err := parseStatuses(c.Query("status"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		filter := domain.TripFilter{
			RouteID:   c.Query("route_id"),
			SaccoID:   c.Query("sacco_id"),
			VehicleID: c.Query("vehicle_id"),
			Statuses:  statuses,
		}
		trips, err := deps.Trips.GetActiveTrips(c.UserContext(), filter)
		if err != nil {
			return respondError(c, err)
		}

		page, pg := paginate(c, trips)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetTripHandler returns the latest snapshot of a trip.
func GetTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Trips.GetTrip(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	}
}

// RouteTripsHandler returns the open trips on a route.
func RouteTripsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		trips, err := deps.Trips.GetActiveTrips(c.UserContext(), domain.TripFilter{RouteID: c.Params("id")})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(trips)
	}
}

// GetRouteHandler returns a route with its ordered stages.
func GetRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		route, err := deps.Routes.GetRoute(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(route)
	}
}

// RouteStagesHandler returns the ordered stages of a route.
func RouteStagesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stages, err := deps.Routes.GetStages(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if len(stages) == 0 {
			return newError(c, fiber.StatusNotFound, "not_found", "route has no stages")
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(stages)
	}
}

// ---- Commands ----

// ownTrip loads the trip and checks the caller may operate it.
func ownTrip(c *fiber.Ctx, deps *Dependencies, tripID string) error {
	snap, err := deps.Trips.GetTrip(c.UserContext(), tripID)
	if err != nil {
		return err
	}
	id := identityFrom(c)
	if !id.CanOperate(&snap.Trip) {
		return fmt.Errorf("%w: %s may not update trip %s", domain.ErrUnauthorized, id.UserID, tripID)
	}
	return nil
}

// StartTripHandler creates a trip. Drivers start their own trips, admins any.
func StartTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.StartTripInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		id := identityFrom(c)
		switch id.Role {
		case domain.RoleAdmin:
		case domain.RoleDriver:
			if in.DriverID == "" {
				in.DriverID = id.UserID
			}
			if in.DriverID != id.UserID {
				return respondError(c, fmt.Errorf("%w: drivers start their own trips", domain.ErrUnauthorized))
			}
		default:
			return respondError(c, fmt.Errorf("%w: role %s cannot start trips", domain.ErrUnauthorized, id.Role))
		}

		out, err := deps.Trips.StartTrip(c.UserContext(), in)
		if out != nil {
			c.Location("/v1/trips/" + out.Snapshot.ID)
		}
		return respondOutcome(c, fiber.StatusCreated, out, err)
	}
}

// TransitionHandler moves a trip through its lifecycle.
func TransitionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.TransitionInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		in.TripID = c.Params("id")
		in.ActorID = identityFrom(c).UserID
		if err := ownTrip(c, deps, in.TripID); err != nil {
			return respondError(c, err)
		}
		out, err := deps.Trips.Transition(c.UserContext(), in)
		return respondOutcome(c, fiber.StatusOK, out, err)
	}
}

// IncidentHandler appends an incident to a trip.
func IncidentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.IncidentInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		in.TripID = c.Params("id")
		in.ReporterID = identityFrom(c).UserID
		if err := ownTrip(c, deps, in.TripID); err != nil {
			return respondError(c, err)
		}
		out, err := deps.Trips.AddIncident(c.UserContext(), in)
		return respondOutcome(c, fiber.StatusCreated, out, err)
	}
}

// LocationHandler applies a GPS fix.
func LocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.LocationInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		in.TripID = c.Params("id")
		if err := ownTrip(c, deps, in.TripID); err != nil {
			return respondError(c, err)
		}
		out, err := deps.Trips.ApplyLocationUpdate(c.UserContext(), in)
		return respondOutcome(c, fiber.StatusOK, out, err)
	}
}

// OccupancyHandler applies a passenger count.
func OccupancyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.OccupancyInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		in.TripID = c.Params("id")
		if err := ownTrip(c, deps, in.TripID); err != nil {
			return respondError(c, err)
		}
		out, err := deps.Trips.ApplyOccupancyUpdate(c.UserContext(), in)
		return respondOutcome(c, fiber.StatusOK, out, err)
	}
}
