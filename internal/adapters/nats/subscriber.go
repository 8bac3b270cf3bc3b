package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

// TelemetryConsumer is the durable consumer name shared by API replicas.
const TelemetryConsumer = "telemetry-applier"

// Subscriber implements ports.TelemetrySubscriber using NATS JetStream.
type Subscriber struct {
	js     nats.JetStreamContext
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing conn.
func NewSubscriber(conn *nats.Conn, logger *slog.Logger) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{js: js, logger: logging.OrDefault(logger)}, nil
}

// SubscribeTelemetry delivers device fixes to handler. Fixes the engine
// rejects for good are terminated, other failures are redelivered.
func (s *Subscriber) SubscribeTelemetry(ctx context.Context, handler func(ctx context.Context, msg *domain.TelemetryMessage) error) error {
	sub, err := s.js.QueueSubscribe(TelemetryPrefix+">", TelemetryConsumer, func(msg *nats.Msg) {
		tm, err := DecodeTelemetry(msg.Subject, msg.Data)
		if err != nil {
			metrics.TelemetryReceived.WithLabelValues("malformed").Inc()
			s.logger.Warn("dropping malformed telemetry", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, tm); err != nil {
			if errors.Is(err, domain.ErrPersistence) {
				// applied in memory and queued for reconciliation
				metrics.TelemetryReceived.WithLabelValues("applied").Inc()
				_ = msg.Ack()
				return
			}
			if Permanent(err) {
				metrics.TelemetryReceived.WithLabelValues("rejected").Inc()
				s.logger.Warn("telemetry rejected", "trip_id", tm.TripID, "driver_id", tm.DriverID, "error", err)
				_ = msg.Term()
				return
			}
			metrics.TelemetryReceived.WithLabelValues("retry").Inc()
			_ = msg.NakWithDelay(time.Second)
			return
		}
		metrics.TelemetryReceived.WithLabelValues("applied").Inc()
		_ = msg.Ack()
	},
		nats.Durable(TelemetryConsumer),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.AckWait(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("subscribe telemetry: %w", err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// DecodeTelemetry parses a device fix. A missing trip_id is taken from the subject.
func DecodeTelemetry(subject string, data []byte) (*domain.TelemetryMessage, error) {
	var tm domain.TelemetryMessage
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, err
	}
	if tm.TripID == "" {
		tm.TripID = strings.TrimPrefix(subject, TelemetryPrefix)
	}
	if tm.TripID == "" || strings.Contains(tm.TripID, ".") {
		return nil, fmt.Errorf("no trip id in %s", subject)
	}
	if tm.DriverID == "" {
		return nil, errors.New("driver_id is required")
	}
	return &tm, nil
}

// Permanent reports whether redelivering the fix cannot succeed.
func Permanent(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrUnauthorized,
		domain.ErrNotFound,
		domain.ErrTripNotLive,
		domain.ErrTripClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Close unsubscribes.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
