package domain

import "time"

// UpdateKind names the kind of change applied to a trip.
type UpdateKind string

const (
	UpdateLocation  UpdateKind = "location"
	UpdateOccupancy UpdateKind = "occupancy"
	UpdateStatus    UpdateKind = "status"
	UpdateIncident  UpdateKind = "incident"
)

// Valid reports whether k is a known update kind.
func (k UpdateKind) Valid() bool {
	switch k {
	case UpdateLocation, UpdateOccupancy, UpdateStatus, UpdateIncident:
		return true
	}
	return false
}

// FansOutToRoute reports whether commits of this kind go to the route room too.
func (k UpdateKind) FansOutToRoute() bool {
	return k == UpdateLocation || k == UpdateStatus
}

// EffectKind names a post-commit side effect.
type EffectKind string

const (
	EffectVehiclePresence EffectKind = "vehicle_presence"
	EffectDriverPresence  EffectKind = "driver_presence"
	EffectNotify          EffectKind = "notify"
)

// Notification kinds sent through the dispatcher.
const (
	NoticeTripStarted      = "trip_started"
	NoticeTripCompleted    = "trip_completed"
	NoticeTripCancelled    = "trip_cancelled"
	NoticeIncidentReported = "incident_reported"
)

// Effect is a side effect on another entity, applied after the trip commit.
type Effect struct {
	Kind      EffectKind     `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Presence  Presence       `json:"presence,omitempty"`
	Notice    string         `json:"notice,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// PresenceEffect sets the presence of a vehicle or driver.
func PresenceEffect(kind EffectKind, subjectID string, p Presence) Effect {
	return Effect{Kind: kind, SubjectID: subjectID, Presence: p}
}

// NotifyEffect sends a notice to a user.
func NotifyEffect(userID, notice string, payload map[string]any) Effect {
	return Effect{Kind: EffectNotify, SubjectID: userID, Notice: notice, Payload: payload}
}

// Outcome is the result of a mutating trip operation.
type Outcome struct {
	Kind     UpdateKind   `json:"kind"`
	Snapshot TripSnapshot `json:"snapshot"`
	Effects  []Effect     `json:"effects,omitempty"`
	Incident *Incident    `json:"incident,omitempty"`
}

// Commit is an accepted trip mutation, handed to observers in apply order.
type Commit struct {
	Kind     UpdateKind
	Snapshot TripSnapshot
}

// TelemetryMessage is a GPS fix published by an on-board device.
type TelemetryMessage struct {
	TripID     string    `json:"trip_id"`
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Heading    float64   `json:"heading"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}
