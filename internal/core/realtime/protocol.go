package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// Inbound message types.
const (
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeUpdate = "update"
)

// Outbound message types.
const (
	TypeSnapshot = "snapshot"
	TypeError    = "error"
	TypeJoined   = "joined"
	TypeLeft     = "left"
	TypeAck      = "ack"
	TypeNotice   = "notice"
)

// Room prefixes.
const (
	RoomTrip  = "trip"
	RoomRoute = "route"
	RoomUser  = "user"
)

// Inbound is a client → hub message.
type Inbound struct {
	Type    string            `json:"type"`
	Room    string            `json:"room,omitempty"`
	TripID  string            `json:"trip_id,omitempty"`
	Kind    domain.UpdateKind `json:"kind,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Outbound is a hub → client message.
type Outbound struct {
	Type    string               `json:"type"`
	Room    string               `json:"room,omitempty"`
	Kind    domain.UpdateKind    `json:"kind,omitempty"`
	Trip    *domain.TripSnapshot `json:"trip,omitempty"`
	TripID  string               `json:"trip_id,omitempty"`
	Version int64                `json:"version,omitempty"`
	Code    string               `json:"code,omitempty"`
	Message string               `json:"message,omitempty"`
	Notice  string               `json:"notice,omitempty"`
	Payload map[string]any       `json:"payload,omitempty"`
}

// LocationPayload is the payload of a location update.
type LocationPayload struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Heading    float64   `json:"heading"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OccupancyPayload is the payload of an occupancy update.
type OccupancyPayload struct {
	Count int `json:"count"`
}

// StatusPayload is the payload of a status update.
type StatusPayload struct {
	To     domain.TripStatus `json:"to"`
	Reason string            `json:"reason,omitempty"`
}

// IncidentPayload is the payload of an incident update.
type IncidentPayload struct {
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Location    *domain.GeoPoint `json:"location,omitempty"`
}

// TripRoom, RouteRoom and UserRoom build room names.
func TripRoom(id string) string  { return RoomTrip + ":" + id }
func RouteRoom(id string) string { return RoomRoute + ":" + id }
func UserRoom(id string) string  { return RoomUser + ":" + id }

// ParseRoom splits "kind:id" and rejects unknown kinds or empty ids.
func ParseRoom(room string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(room, ":")
	if !ok || id == "" {
		return "", "", domain.Validationf("room %q must look like kind:id", room)
	}
	switch kind {
	case RoomTrip, RoomRoute, RoomUser:
		return kind, id, nil
	}
	return "", "", domain.Validationf("unknown room kind %q", kind)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.Validationf("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Validationf("bad payload: %v", err)
	}
	return nil
}

func encode(msg Outbound) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		return []byte(fmt.Sprintf(`{"type":"error","code":"internal_error","message":%q}`, err.Error()))
	}
	return data
}
