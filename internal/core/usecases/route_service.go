package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
)

const defaultRouteCacheTTL = 300

// RouteService is a read-through cache in front of the route directory.
// Concurrent misses for the same route share one directory call.
type RouteService struct {
	routes ports.RouteDirectory
	cache  ports.CacheService
	ttl    int
	group  singleflight.Group
}

// NewRouteService creates a new RouteService. cache may be nil.
func NewRouteService(routes ports.RouteDirectory, cache ports.CacheService, ttlSeconds int) *RouteService {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultRouteCacheTTL
	}
	return &RouteService{routes: routes, cache: cache, ttl: ttlSeconds}
}

// GetRoute returns a route with its stages ordered by sequence.
func (s *RouteService) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	var route domain.Route
	if s.fromCache(ctx, "routes:id:"+routeID, &route) {
		return &route, nil
	}

	v, err, _ := s.group.Do("route:"+routeID, func() (any, error) {
		r, err := s.routes.GetRoute(ctx, routeID)
		if err != nil {
			return nil, err
		}
		sortStages(r.Stages)
		s.toCache(ctx, "routes:id:"+routeID, r)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", routeID, err)
	}
	r := *v.(*domain.Route)
	r.Stages = append([]domain.Stage(nil), r.Stages...)
	return &r, nil
}

// GetStages returns the ordered stages of a route.
func (s *RouteService) GetStages(ctx context.Context, routeID string) ([]domain.Stage, error) {
	var stages []domain.Stage
	if s.fromCache(ctx, "routes:stages:"+routeID, &stages) {
		return stages, nil
	}

	v, err, _ := s.group.Do("stages:"+routeID, func() (any, error) {
		st, err := s.routes.GetStages(ctx, routeID)
		if err != nil {
			return nil, err
		}
		sortStages(st)
		s.toCache(ctx, "routes:stages:"+routeID, st)
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get stages %s: %w", routeID, err)
	}
	return append([]domain.Stage(nil), v.([]domain.Stage)...), nil
}

// Invalidate drops the cached copies of a route.
func (s *RouteService) Invalidate(ctx context.Context, routeID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, "routes:id:"+routeID)
	_ = s.cache.Delete(ctx, "routes:stages:"+routeID)
}

func (s *RouteService) fromCache(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("route").Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false
	}
	metrics.CacheHits.WithLabelValues("route").Inc()
	return true
}

func (s *RouteService) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, s.ttl)
	}
}

func sortStages(stages []domain.Stage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Sequence < stages[j].Sequence })
}
