package postgres

import (
	"context"
	"fmt"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// RouteRepo implements ports.RouteDirectory.
type RouteRepo struct {
	db *DB
}

func NewRouteRepo(db *DB) *RouteRepo { return &RouteRepo{db: db} }

func (r *RouteRepo) GetRoute(ctx context.Context, id string) (*domain.Route, error) {
	var rt domain.Route
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, sacco_id, name, created_at FROM routes WHERE id = $1
	`, id).Scan(&rt.ID, &rt.SaccoID, &rt.Name, &rt.CreatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("route %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", id, err)
	}

	rt.Stages, err = r.GetStages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetStages returns the stages of a route ordered by sequence.
func (r *RouteRepo) GetStages(ctx context.Context, routeID string) ([]domain.Stage, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, route_id, name,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lon,
		       sequence
		FROM stages WHERE route_id = $1 ORDER BY sequence
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("get stages %s: %w", routeID, err)
	}
	defer rows.Close()

	var stages []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Name, &s.Location.Lat, &s.Location.Lon, &s.Sequence); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}
