package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrTripNotFound         = fmt.Errorf("trip %w", ErrNotFound)
	ErrTripNotLive          = errors.New("trip is not boarding or active")
	ErrTripClosed           = errors.New("trip is completed or cancelled")
	ErrVehicleUnavailable   = errors.New("vehicle unavailable")
	ErrDriverUnavailable    = errors.New("driver unavailable")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrInvalidCapacity      = errors.New("invalid capacity")
	ErrPersistence          = errors.New("persistence error")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// InvalidTransitionError carries the rejected state change.
type InvalidTransitionError struct {
	From TripStatus
	To   TripStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTripNotLive):
		return "trip_not_live"
	case errors.Is(err, ErrTripClosed):
		return "trip_closed"
	case errors.Is(err, ErrVehicleUnavailable):
		return "vehicle_unavailable"
	case errors.Is(err, ErrDriverUnavailable):
		return "driver_unavailable"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidCapacity):
		return "invalid_capacity"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
