package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "validation_error", msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnauthorized, "authentication_failed", msg)
}

// statusFor maps a domain error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "validation_error":
		return fiber.StatusBadRequest
	case "authentication_failed":
		return fiber.StatusUnauthorized
	case "unauthorized":
		return fiber.StatusForbidden
	case "not_found":
		return fiber.StatusNotFound
	case "invalid_transition", "trip_not_live", "trip_closed", "vehicle_unavailable", "driver_unavailable":
		return fiber.StatusConflict
	case "capacity_exceeded", "invalid_capacity":
		return fiber.StatusUnprocessableEntity
	case "store_unavailable", "persistence_error":
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status its domain code maps to.
// Internal errors are logged and masked.
func respondError(c *fiber.Ctx, err error) error {
	code := domain.ErrorCode(err)
	msg := err.Error()
	if code == "internal_error" {
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		msg = "internal error"
	}
	return newError(c, statusFor(code), code, msg)
}

// outcomeResponse is returned by every mutating endpoint.
type outcomeResponse struct {
	Trip    domain.TripSnapshot `json:"trip"`
	Warning string              `json:"warning,omitempty"`
}

// respondOutcome writes the snapshot of a mutation. A write that was applied
// but not yet persisted answers 202 with a persistence_error warning.
func respondOutcome(c *fiber.Ctx, status int, out *domain.Outcome, err error) error {
	if err != nil && (out == nil || !errors.Is(err, domain.ErrPersistence)) {
		return respondError(c, err)
	}
	resp := outcomeResponse{Trip: out.Snapshot}
	if err != nil {
		status = fiber.StatusAccepted
		resp.Warning = domain.ErrorCode(err)
	}
	return c.Status(status).JSON(resp)
}
