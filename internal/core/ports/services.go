package ports

import (
	"context"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// Identity verifies bearer tokens issued by the auth service.
type Identity interface {
	VerifyToken(ctx context.Context, token string) (domain.Identity, error)
}

// Notifier delivers user notices. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID, kind string, payload map[string]any) error

func (f NotifierFunc) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	return f(ctx, userID, kind, payload)
}

// EffectDispatcher applies the post-commit effects of a trip mutation.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, tripID string, effects []domain.Effect) error
}

// Reconciler retries trip writes that failed after the in-line retry.
type Reconciler interface {
	Enqueue(ctx context.Context, trip *domain.Trip) error
}

// CommitObserver is told about every accepted trip mutation.
// It is called under the trip's serialization point and must not block.
type CommitObserver interface {
	OnCommit(ctx context.Context, commit domain.Commit)
}

// CommitObserverFunc adapts a function to CommitObserver.
type CommitObserverFunc func(ctx context.Context, commit domain.Commit)

func (f CommitObserverFunc) OnCommit(ctx context.Context, commit domain.Commit) { f(ctx, commit) }

// EventPublisher mirrors trip snapshots to the message broker.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, kind domain.UpdateKind, snap *domain.TripSnapshot) error
}

// TelemetrySubscriber consumes GPS fixes from on-board devices.
type TelemetrySubscriber interface {
	SubscribeTelemetry(ctx context.Context, handler func(ctx context.Context, msg *domain.TelemetryMessage) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
