package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/pkg/logging"
)

// Stream and subject names.
const (
	SnapshotStream   = "TRIP_SNAPSHOTS"
	TelemetryStream  = "DEVICE_TELEMETRY"
	SnapshotSubjects = "safiri.trips.>"
	TelemetryPrefix  = "safiri.telemetry."
)

// SnapshotSubject is safiri.trips.<route_id>.<trip_id>.
func SnapshotSubject(routeID, tripID string) string {
	return "safiri.trips." + routeID + "." + tripID
}

// TelemetrySubject is safiri.telemetry.<trip_id>.
func TelemetrySubject(tripID string) string {
	return TelemetryPrefix + tripID
}

// SnapshotEvent is the mirrored message body.
type SnapshotEvent struct {
	Kind domain.UpdateKind   `json:"kind"`
	Trip domain.TripSnapshot `json:"trip"`
}

// Connect opens a NATS connection that keeps reconnecting.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("safiri"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// EnsureStreams creates or updates the JetStream streams.
func EnsureStreams(js nats.JetStreamContext) error {
	streams := []nats.StreamConfig{
		{
			Name:       SnapshotStream,
			Subjects:   []string{SnapshotSubjects},
			Retention:  nats.LimitsPolicy,
			MaxAge:     24 * time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
		{
			Name:      TelemetryStream,
			Subjects:  []string{TelemetryPrefix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// stream already exists, update it in place
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

// Publisher implements ports.EventPublisher and ports.CommitObserver using
// NATS JetStream. Publishes are asynchronous and deduplicated on trip id and version.
type Publisher struct {
	js     nats.JetStreamContext
	logger *slog.Logger
}

// NewPublisher enables JetStream on conn and ensures the streams exist.
func NewPublisher(conn *nats.Conn, logger *slog.Logger) (*Publisher, error) {
	js, err := conn.JetStream(nats.PublishAsyncMaxPending(4096))
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := EnsureStreams(js); err != nil {
		return nil, err
	}
	return &Publisher{js: js, logger: logging.OrDefault(logger)}, nil
}

func (p *Publisher) PublishSnapshot(ctx context.Context, kind domain.UpdateKind, snap *domain.TripSnapshot) error {
	data, err := json.Marshal(SnapshotEvent{Kind: kind, Trip: *snap})
	if err != nil {
		return err
	}
	msgID := snap.ID + ":" + strconv.FormatInt(snap.Version, 10)
	_, err = p.js.PublishAsync(SnapshotSubject(snap.RouteID, snap.ID), data, nats.MsgId(msgID))
	return err
}

// OnCommit mirrors every accepted change.
func (p *Publisher) OnCommit(ctx context.Context, commit domain.Commit) {
	if err := p.PublishSnapshot(ctx, commit.Kind, &commit.Snapshot); err != nil {
		p.logger.Warn("snapshot mirror failed", "trip_id", commit.Snapshot.ID, "version", commit.Snapshot.Version, "error", err)
	}
}

// Flush waits for outstanding publishes to be acknowledged.
func (p *Publisher) Flush(ctx context.Context) {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-ctx.Done():
	}
}
