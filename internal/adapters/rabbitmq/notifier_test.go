package rabbitmq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/safiri/internal/adapters/rabbitmq"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	publishErr error
	sent       []published
	closed     bool
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.sent = append(m.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestNotify_PublishesPersistentJSON(t *testing.T) {
	ch := &mockChannel{}
	n := rabbitmq.NewNotifier(ch, "", nil)

	err := n.Notify(context.Background(), "d1", "trip_completed", map[string]any{"trip_id": "t1"})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, rabbitmq.DefaultExchange, got.exchange)
	assert.Equal(t, "user.d1.trip_completed", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var body rabbitmq.Message
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "d1", body.UserID)
	assert.Equal(t, "trip_completed", body.Kind)
	assert.Equal(t, "t1", body.Payload["trip_id"])
}

func TestNotify_WrapsPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	n := rabbitmq.NewNotifier(&mockChannel{publishErr: boom}, "alerts", nil)

	err := n.Notify(context.Background(), "d1", "incident_reported", nil)
	assert.ErrorIs(t, err, boom)
}

func TestClose_ClosesChannel(t *testing.T) {
	ch := &mockChannel{}
	n := rabbitmq.NewNotifier(ch, "", nil)
	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}
