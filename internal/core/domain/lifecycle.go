package domain

// TripStatus is a state of the trip lifecycle.
type TripStatus string

const (
	StatusScheduled TripStatus = "scheduled"
	StatusBoarding  TripStatus = "boarding"
	StatusActive    TripStatus = "active"
	StatusCompleted TripStatus = "completed"
	StatusCancelled TripStatus = "cancelled"
)

// AllStatuses lists every lifecycle state in declaration order.
var AllStatuses = []TripStatus{StatusScheduled, StatusBoarding, StatusActive, StatusCompleted, StatusCancelled}

var transitions = map[TripStatus][]TripStatus{
	StatusScheduled: {StatusBoarding, StatusCancelled},
	StatusBoarding:  {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s TripStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsLive reports whether the trip accepts location and occupancy updates.
func (s TripStatus) IsLive() bool {
	return s == StatusBoarding || s == StatusActive
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to TripStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable from s.
func NextStatuses(s TripStatus) []TripStatus {
	return append([]TripStatus(nil), transitions[s]...)
}
