package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// AlertRepo implements ports.AlertStore with a PostGIS radius query.
type AlertRepo struct {
	db *DB
}

func NewAlertRepo(db *DB) *AlertRepo { return &AlertRepo{db: db} }

// FindActiveNear returns active, unexpired alerts within radius meters of p.
func (r *AlertRepo) FindActiveNear(ctx context.Context, p domain.GeoPoint, radius float64, asOf time.Time) ([]domain.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, type,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lon,
		       severity, status, expires_at
		FROM alerts
		WHERE status = 'active'
		  AND (expires_at IS NULL OR expires_at > $4)
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
	`, p.Lon, p.Lat, radius, asOf)
	if err != nil {
		return nil, fmt.Errorf("find alerts near %s: %w", p, err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var expires *time.Time
		if err := rows.Scan(&a.ID, &a.Type, &a.Location.Lat, &a.Location.Lon, &a.Severity, &a.Status, &expires); err != nil {
			return nil, err
		}
		if expires != nil {
			a.ExpiresAt = *expires
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
