package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// GetTrip returns the latest snapshot of a trip.
func (m *TripManager) GetTrip(ctx context.Context, tripID string) (*domain.TripSnapshot, error) {
	if t := m.live.get(tripID); t != nil {
		snap := t.Snapshot()
		return &snap, nil
	}
	t, err := m.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	snap := t.Snapshot()
	return &snap, nil
}

// GetActiveTrips lists trips matching filter. An empty status filter means
// every non-terminal trip. Live state wins over the store when it is newer.
func (m *TripManager) GetActiveTrips(ctx context.Context, filter domain.TripFilter) ([]domain.TripSnapshot, error) {
	stored, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list trips: %w", domain.ErrStoreUnavailable, err)
	}

	byID := make(map[string]*domain.Trip, len(stored))
	for i := range stored {
		t := &stored[i]
		if cached := m.live.get(t.ID); cached != nil && cached.Version > t.Version {
			t = cached
		}
		if filter.Matches(t) {
			byID[t.ID] = t
		}
	}
	for _, t := range m.live.find(filter.Matches) {
		if cur, ok := byID[t.ID]; !ok || t.Version > cur.Version {
			byID[t.ID] = t
		}
	}

	out := make([]domain.TripSnapshot, 0, len(byID))
	for _, t := range byID {
		out = append(out, t.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// HasOpenTrip reports whether the driver still has a non-terminal trip.
func (m *TripManager) HasOpenTrip(ctx context.Context, driverID string) (bool, error) {
	t, err := m.openTrip(ctx, func(t *domain.Trip) bool { return t.DriverID == driverID }, m.store.FindNonTerminalByDriver, driverID)
	if err != nil {
		return false, err
	}
	return t != nil, nil
}
