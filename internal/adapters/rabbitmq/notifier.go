// Package rabbitmq delivers user notices on a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samirrijal/safiri/internal/pkg/logging"
)

// DefaultExchange is the topic exchange notices are published on.
const DefaultExchange = "notifications"

// Publisher is the part of *amqp.Channel the notifier uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the notice body consumed by the push service.
type Message struct {
	UserID  string         `json:"user_id"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// Notifier implements ports.Notifier.
type Notifier struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
	ch Publisher
}

// Dial connects to url and declares the durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Notifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	n := NewNotifier(ch, exchange, logger)
	n.conn = conn
	return n, nil
}

// NewNotifier publishes through an already open channel.
func NewNotifier(ch Publisher, exchange string, logger *slog.Logger) *Notifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{ch: ch, exchange: exchange, logger: logging.OrDefault(logger), now: time.Now}
}

// RoutingKey is "user.<user_id>.<kind>" so consumers can bind per user or per kind.
func RoutingKey(userID, kind string) string {
	return "user." + userID + "." + kind
}

// Notify publishes one persistent JSON message.
func (n *Notifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	now := n.now()
	body, err := json.Marshal(Message{UserID: userID, Kind: kind, Payload: payload, SentAt: now})
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.PublishWithContext(ctx, n.exchange, RoutingKey(userID, kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notice %s to %s: %w", kind, userID, err)
	}
	n.logger.Debug("notice published", "user_id", userID, "kind", kind)
	return nil
}

// Close closes the channel and, when dialed, the connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.ch.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
