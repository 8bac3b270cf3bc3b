// Package realtime fans accepted trip changes out to subscribed clients and
// applies driver updates arriving over sockets or device telemetry.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/usecases"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

// DefaultSendBuffer is the per-client outbound queue length.
const DefaultSendBuffer = 256

// TripService is the part of the trip manager the hub drives.
type TripService interface {
	GetTrip(ctx context.Context, tripID string) (*domain.TripSnapshot, error)
	HasOpenTrip(ctx context.Context, driverID string) (bool, error)
	ApplyLocationUpdate(ctx context.Context, in usecases.LocationInput) (*domain.Outcome, error)
	ApplyOccupancyUpdate(ctx context.Context, in usecases.OccupancyInput) (*domain.Outcome, error)
	Transition(ctx context.Context, in usecases.TransitionInput) (*domain.Outcome, error)
	AddIncident(ctx context.Context, in usecases.IncidentInput) (*domain.Outcome, error)
}

// Client is one connected socket.
type Client struct {
	ID       string
	Identity domain.Identity

	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

// Send is the client's outbound queue. It is closed on disconnect.
func (c *Client) Send() <-chan []byte { return c.send }

// Hub manages room membership and broadcasts.
type Hub struct {
	trips    TripService
	identity ports.Identity
	fleet    ports.FleetRegistry
	logger   *slog.Logger
	buffer   int

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	byUser  map[string]int
}

// NewHub creates a new Hub. fleet may be nil, in which case disconnects
// leave driver presence alone.
func NewHub(trips TripService, identity ports.Identity, fleet ports.FleetRegistry, logger *slog.Logger) *Hub {
	return &Hub{
		trips:    trips,
		identity: identity,
		fleet:    fleet,
		logger:   logging.OrDefault(logger),
		buffer:   DefaultSendBuffer,
		rooms:    make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]struct{}),
		byUser:   make(map[string]int),
	}
}

// SetSendBuffer changes the queue length of clients connected afterwards.
func (h *Hub) SetSendBuffer(n int) {
	if n > 0 {
		h.buffer = n
	}
}

// Connect authenticates a token and registers a client joined to its own user room.
func (h *Hub) Connect(ctx context.Context, token string) (*Client, error) {
	id, err := h.identity.VerifyToken(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
		}
		return nil, err
	}

	c := &Client{
		ID:       uuid.NewString(),
		Identity: id,
		send:     make(chan []byte, h.buffer),
		rooms:    make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.byUser[id.UserID]++
	h.joinLocked(c, UserRoom(id.UserID))
	h.mu.Unlock()

	metrics.ActiveWebSockets.Inc()
	h.logger.Debug("client connected", "client_id", c.ID, "user_id", id.UserID, "role", id.Role)
	return c, nil
}

// Disconnect removes the client from every room and closes its queue. A driver
// with no other connection and no open trip is marked offline.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	userID := c.Identity.UserID
	h.byUser[userID]--
	remaining := h.byUser[userID]
	if remaining <= 0 {
		delete(h.byUser, userID)
	}
	c.closed = true
	close(c.send)
	h.mu.Unlock()

	metrics.ActiveWebSockets.Dec()
	h.logger.Debug("client disconnected", "client_id", c.ID, "user_id", userID)

	if c.Identity.Role != domain.RoleDriver || remaining > 0 || h.fleet == nil {
		return
	}
	open, err := h.trips.HasOpenTrip(ctx, userID)
	if err != nil {
		h.logger.Warn("open trip lookup failed on disconnect", "driver_id", userID, "error", err)
		return
	}
	if open {
		return
	}
	if err := h.fleet.SetDriverPresence(ctx, userID, domain.PresenceOffline); err != nil {
		h.logger.Warn("set driver offline failed", "driver_id", userID, "error", err)
	}
}

// HandleMessage processes one raw inbound message from c. Failures are
// reported to c only.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(c, domain.Validationf("malformed message: %v", err))
		return
	}

	switch in.Type {
	case TypeJoin:
		if err := h.Join(ctx, c, in.Room); err != nil {
			h.sendError(c, err)
		}
	case TypeLeave:
		if err := h.Leave(c, in.Room); err != nil {
			h.sendError(c, err)
		}
	case TypeUpdate:
		h.handleUpdate(ctx, c, in)
	default:
		h.sendError(c, domain.Validationf("unknown message type %q", in.Type))
	}
}

// Join adds c to room. Joining twice is a no-op. A trip room join is
// answered with the current snapshot.
func (h *Hub) Join(ctx context.Context, c *Client, room string) error {
	kind, id, err := ParseRoom(room)
	if err != nil {
		return err
	}
	if kind == RoomUser && id != c.Identity.UserID && c.Identity.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: cannot join %s", domain.ErrUnauthorized, room)
	}

	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
	h.deliver(c, encode(Outbound{Type: TypeJoined, Room: room}))

	if kind == RoomTrip {
		if snap, err := h.trips.GetTrip(ctx, id); err == nil {
			h.deliver(c, encode(Outbound{Type: TypeSnapshot, Room: room, Trip: snap}))
		}
	}
	return nil
}

// Leave removes c from room. Leaving a room c is not in is a no-op.
func (h *Hub) Leave(c *Client, room string) error {
	if _, _, err := ParseRoom(room); err != nil {
		return err
	}
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
	h.deliver(c, encode(Outbound{Type: TypeLeft, Room: room}))
	return nil
}

func (h *Hub) joinLocked(c *Client, room string) {
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) handleUpdate(ctx context.Context, c *Client, in Inbound) {
	if in.TripID == "" {
		h.sendError(c, domain.Validationf("trip_id is required"))
		return
	}
	if !in.Kind.Valid() {
		h.sendError(c, domain.Validationf("unknown update kind %q", in.Kind))
		return
	}
	out, err := h.apply(ctx, c.Identity, in)
	if out != nil {
		h.deliver(c, encode(Outbound{Type: TypeAck, TripID: out.Snapshot.ID, Kind: in.Kind, Version: out.Snapshot.Version}))
	}
	if err != nil {
		h.sendError(c, err)
	}
}

// ApplyTelemetry applies a device GPS fix on behalf of its driver.
func (h *Hub) ApplyTelemetry(ctx context.Context, msg *domain.TelemetryMessage) error {
	payload, err := json.Marshal(LocationPayload{
		Lat:        msg.Lat,
		Lon:        msg.Lon,
		SpeedKmh:   msg.SpeedKmh,
		Heading:    msg.Heading,
		Accuracy:   msg.Accuracy,
		RecordedAt: msg.RecordedAt,
	})
	if err != nil {
		return err
	}
	id := domain.Identity{UserID: msg.DriverID, Role: domain.RoleDriver}
	_, err = h.apply(ctx, id, Inbound{Type: TypeUpdate, TripID: msg.TripID, Kind: domain.UpdateLocation, Payload: payload})
	return err
}

// apply checks ownership and dispatches to the trip manager. Broadcasting
// happens in OnCommit. Outcome and error may both be set on a persistence failure.
func (h *Hub) apply(ctx context.Context, id domain.Identity, in Inbound) (*domain.Outcome, error) {
	snap, err := h.trips.GetTrip(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	if !id.CanOperate(&snap.Trip) {
		h.logger.Warn("update rejected, not the trip's driver",
			"trip_id", in.TripID, "user_id", id.UserID, "kind", in.Kind)
		return nil, fmt.Errorf("%w: %s may not update trip %s", domain.ErrUnauthorized, id.UserID, in.TripID)
	}

	switch in.Kind {
	case domain.UpdateLocation:
		var p LocationPayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.trips.ApplyLocationUpdate(ctx, usecases.LocationInput{
			TripID: in.TripID, Lat: p.Lat, Lon: p.Lon, SpeedKmh: p.SpeedKmh,
			Heading: p.Heading, Accuracy: p.Accuracy, RecordedAt: p.RecordedAt,
		})
	case domain.UpdateOccupancy:
		var p OccupancyPayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.trips.ApplyOccupancyUpdate(ctx, usecases.OccupancyInput{TripID: in.TripID, Count: p.Count})
	case domain.UpdateStatus:
		var p StatusPayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.trips.Transition(ctx, usecases.TransitionInput{
			TripID: in.TripID, To: p.To, Reason: p.Reason, ActorID: id.UserID,
		})
	case domain.UpdateIncident:
		var p IncidentPayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.trips.AddIncident(ctx, usecases.IncidentInput{
			TripID: in.TripID, Type: p.Type, Description: p.Description,
			Location: p.Location, ReporterID: id.UserID,
		})
	}
	return nil, domain.Validationf("unknown update kind %q", in.Kind)
}

// OnCommit implements ports.CommitObserver. Snapshots go to the trip room,
// and location and status changes also go to the route room.
func (h *Hub) OnCommit(ctx context.Context, commit domain.Commit) {
	snap := commit.Snapshot
	h.Publish(TripRoom(snap.ID), Outbound{Type: TypeSnapshot, Room: TripRoom(snap.ID), Kind: commit.Kind, Trip: &snap})
	if commit.Kind.FansOutToRoute() {
		h.Publish(RouteRoom(snap.RouteID), Outbound{Type: TypeSnapshot, Room: RouteRoom(snap.RouteID), Kind: commit.Kind, Trip: &snap})
	}
}

// Notify implements ports.Notifier by posting to the user's room.
func (h *Hub) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	h.Publish(UserRoom(userID), Outbound{Type: TypeNotice, Room: UserRoom(userID), Notice: kind, Payload: payload})
	return nil
}

// Publish sends msg to every member of room without blocking. A member whose
// queue is full misses the message.
func (h *Hub) Publish(room string, msg Outbound) {
	data := encode(msg)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		h.offerLocked(c, data)
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.offerLocked(c, data)
}

func (h *Hub) offerLocked(c *Client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.BroadcastDrops.Inc()
		h.logger.Warn("client send queue full, dropping message", "client_id", c.ID, "user_id", c.Identity.UserID)
	}
}

func (h *Hub) sendError(c *Client, err error) {
	code := domain.ErrorCode(err)
	msg := Outbound{Type: TypeError, Code: code, Message: err.Error()}
	if code == "internal_error" {
		msg.Message = "internal error"
		h.logger.Error("update failed", "client_id", c.ID, "error", err)
	}
	h.deliver(c, encode(msg))
}

// Rooms returns the rooms c belongs to.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// Members returns how many clients are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of open clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
