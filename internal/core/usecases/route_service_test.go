package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/usecases"
)

// --- Mock RouteDirectory ---

type mockDirectory struct {
	getRouteFn  func(ctx context.Context, id string) (*domain.Route, error)
	getStagesFn func(ctx context.Context, id string) ([]domain.Stage, error)
}

func (m *mockDirectory) GetRoute(ctx context.Context, id string) (*domain.Route, error) {
	if m.getRouteFn != nil {
		return m.getRouteFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockDirectory) GetStages(ctx context.Context, id string) ([]domain.Stage, error) {
	if m.getStagesFn != nil {
		return m.getStagesFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func unorderedStages() []domain.Stage {
	return []domain.Stage{
		{ID: "c", Name: "Westlands", Sequence: 3},
		{ID: "a", Name: "Kencom", Sequence: 1},
		{ID: "b", Name: "Museum Hill", Sequence: 2},
	}
}

func TestRouteService_GetStagesSortsBySequence(t *testing.T) {
	repo := &mockDirectory{
		getStagesFn: func(ctx context.Context, id string) ([]domain.Stage, error) {
			return unorderedStages(), nil
		},
	}

	svc := usecases.NewRouteService(repo, nil, 0)
	stages, err := svc.GetStages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	for i, want := range []string{"a", "b", "c"} {
		if stages[i].ID != want {
			t.Errorf("stage %d = %s, want %s", i, stages[i].ID, want)
		}
	}
}

func TestRouteService_GetStagesUsesCache(t *testing.T) {
	var calls int32
	repo := &mockDirectory{
		getStagesFn: func(ctx context.Context, id string) ([]domain.Stage, error) {
			atomic.AddInt32(&calls, 1)
			return unorderedStages(), nil
		},
	}

	svc := usecases.NewRouteService(repo, newMemCache(), 60)
	for i := 0; i < 3; i++ {
		stages, err := svc.GetStages(context.Background(), "r1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stages[0].Name != "Kencom" {
			t.Errorf("expected Kencom first, got %s", stages[0].Name)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 directory call, got %d", calls)
	}

	svc.Invalidate(context.Background(), "r1")
	if _, err := svc.GetStages(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a reload after invalidate, got %d calls", calls)
	}
}

func TestRouteService_ConcurrentMissesShareOneCall(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	repo := &mockDirectory{
		getStagesFn: func(ctx context.Context, id string) ([]domain.Stage, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return unorderedStages(), nil
		},
	}
	svc := usecases.NewRouteService(repo, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetStages(context.Background(), "r1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected 1 directory call, got %d", calls)
	}
}

func TestRouteService_GetRouteNotFound(t *testing.T) {
	svc := usecases.NewRouteService(&mockDirectory{}, nil, 0)
	_, err := svc.GetRoute(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRouteService_GetRoute(t *testing.T) {
	repo := &mockDirectory{
		getRouteFn: func(ctx context.Context, id string) (*domain.Route, error) {
			return &domain.Route{ID: id, Name: "Route 46", Stages: unorderedStages()}, nil
		},
	}
	svc := usecases.NewRouteService(repo, newMemCache(), 0)

	route, err := svc.GetRoute(context.Background(), "r46")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Name != "Route 46" || route.Stages[0].ID != "a" {
		t.Errorf("unexpected route %+v", route)
	}

	cached, err := svc.GetRoute(context.Background(), "r46")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached.Stages[2].ID != "c" {
		t.Errorf("cached route lost stage order: %+v", cached.Stages)
	}
}
