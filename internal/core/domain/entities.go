package domain

import (
	"time"
)

// Sacco is the operating company that owns vehicles and routes.
type Sacco struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Stage is a named, geolocated stop along a route.
type Stage struct {
	ID       string   `json:"id"`
	RouteID  string   `json:"route_id"`
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
	Sequence int      `json:"sequence"`
}

// Route is a static route definition, consumed read-only.
type Route struct {
	ID        string    `json:"id"`
	SaccoID   string    `json:"sacco_id"`
	Name      string    `json:"name"`
	Stages    []Stage   `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

// Presence is the live availability of a vehicle or driver.
type Presence string

const (
	PresenceOffline Presence = "offline"
	PresenceIdle    Presence = "idle"
	PresenceActive  Presence = "active"
)

// Vehicle is a matatu registered to a sacco.
type Vehicle struct {
	ID        string   `json:"id"`
	SaccoID   string   `json:"sacco_id"`
	Plate     string   `json:"plate"`
	Capacity  int      `json:"capacity"`
	InService bool     `json:"in_service"`
	Presence  Presence `json:"presence"`
}

// Driver is a user allowed to operate vehicles of a sacco.
type Driver struct {
	ID       string   `json:"id"`
	SaccoID  string   `json:"sacco_id"`
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
	Presence Presence `json:"presence"`
}

// Location is a single GPS fix reported by a vehicle.
type Location struct {
	Point      GeoPoint  `json:"point"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Heading    float64   `json:"heading"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StageETA is the predicted arrival at one upcoming stage.
type StageETA struct {
	StageIndex        int       `json:"stage_index"`
	StageName         string    `json:"stage_name"`
	ETA               time.Time `json:"eta"`
	Minutes           int       `json:"minutes"`
	DistanceRemaining float64   `json:"distance_remaining_m"`
}

// TripStats holds the derived statistics of a trip.
type TripStats struct {
	DistanceMeters  float64       `json:"distance_m"`
	Duration        time.Duration `json:"duration"`
	AverageSpeedKmh float64       `json:"average_speed_kmh"`
}

// Incident is an append-only entry in a trip's incident log.
type Incident struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Location    *GeoPoint `json:"location,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
	ReportedBy  string    `json:"reported_by"`
	Resolved    bool      `json:"resolved"`
}

// Trip is one vehicle's single journey along a route.
type Trip struct {
	ID                string     `json:"id"`
	VehicleID         string     `json:"vehicle_id"`
	RouteID           string     `json:"route_id"`
	DriverID          string     `json:"driver_id"`
	SaccoID           string     `json:"sacco_id"`
	Status            TripStatus `json:"status"`
	Version           int64      `json:"version"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	DepartedAt        *time.Time `json:"departed_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CurrentStageIndex int        `json:"current_stage_index"`
	OffRoute          bool       `json:"off_route"`
	Location          *Location  `json:"location,omitempty"`
	Capacity          int        `json:"capacity"`
	Occupancy         int        `json:"occupancy"`
	CrowdLevel        CrowdLevel `json:"crowd_level"`
	ETAs              []StageETA `json:"etas"`
	Stats             TripStats  `json:"stats"`
	Incidents         []Incident `json:"incidents"`
	Revenue           float64    `json:"revenue"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Clone returns a deep copy that shares no mutable state with t.
func (t *Trip) Clone() *Trip {
	c := *t
	c.ScheduledAt = cloneTime(t.ScheduledAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.DepartedAt = cloneTime(t.DepartedAt)
	c.EndedAt = cloneTime(t.EndedAt)
	if t.Location != nil {
		loc := *t.Location
		c.Location = &loc
	}
	if t.ETAs != nil {
		c.ETAs = append([]StageETA(nil), t.ETAs...)
	}
	if t.Incidents != nil {
		c.Incidents = make([]Incident, len(t.Incidents))
		for i, inc := range t.Incidents {
			if inc.Location != nil {
				p := *inc.Location
				inc.Location = &p
			}
			c.Incidents[i] = inc
		}
	}
	return &c
}

// Snapshot returns the immutable view published after a successful update.
func (t *Trip) Snapshot() TripSnapshot {
	return TripSnapshot{Trip: *t.Clone()}
}

func cloneTime(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	v := *ts
	return &v
}

// TripSnapshot is the fully-derived view of a trip at one version.
type TripSnapshot struct {
	Trip
}

// TripFilter narrows GetActiveTrips queries. Empty fields match everything.
type TripFilter struct {
	RouteID   string
	SaccoID   string
	VehicleID string
	Statuses  []TripStatus
}

// Matches reports whether the trip satisfies the filter.
func (f TripFilter) Matches(t *Trip) bool {
	if f.RouteID != "" && t.RouteID != f.RouteID {
		return false
	}
	if f.SaccoID != "" && t.SaccoID != f.SaccoID {
		return false
	}
	if f.VehicleID != "" && t.VehicleID != f.VehicleID {
		return false
	}
	if len(f.Statuses) == 0 {
		return !t.Status.IsTerminal()
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// Severity grades a hazard alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of a hazard alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertExpired  AlertStatus = "expired"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a crowd-sourced hazard report near a road.
type Alert struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Location  GeoPoint    `json:"location"`
	Severity  Severity    `json:"severity"`
	Status    AlertStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Role is the identity role issued by the auth collaborator.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Identity is a verified caller.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// CanOperate reports whether the identity may mutate the trip.
// Only the assigned driver or an admin may.
func (id Identity) CanOperate(t *Trip) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.Role == RoleDriver && id.UserID != "" && id.UserID == t.DriverID
}
