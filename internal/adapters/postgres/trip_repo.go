package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// TripRepo implements ports.TripStore. The full trip is kept as a jsonb
// document next to the columns it is queried by.
type TripRepo struct {
	db *DB
}

func NewTripRepo(db *DB) *TripRepo {
	return &TripRepo{db: db}
}

func openStatuses() []string {
	return []string{string(domain.StatusScheduled), string(domain.StatusBoarding), string(domain.StatusActive)}
}

// Save upserts the trip. A row already at the same or a newer version is left
// alone, so replays and reconciliation are idempotent.
func (r *TripRepo) Save(ctx context.Context, t *domain.Trip) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trip %s: %w", t.ID, err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO trips (id, vehicle_id, route_id, driver_id, sacco_id, status, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, version = EXCLUDED.version,
		    doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
		WHERE trips.version < EXCLUDED.version
	`, t.ID, t.VehicleID, t.RouteID, t.DriverID, t.SaccoID, string(t.Status), t.Version, doc, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save trip %s: %w", t.ID, err)
	}
	return nil
}

func (r *TripRepo) Load(ctx context.Context, id string) (*domain.Trip, error) {
	var doc []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT doc FROM trips WHERE id = $1`, id).Scan(&doc)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTripNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load trip %s: %w", id, err)
	}
	return decodeTrip(doc)
}

func (r *TripRepo) FindNonTerminalByVehicle(ctx context.Context, vehicleID string) (*domain.Trip, error) {
	return r.findOpen(ctx, "vehicle_id", vehicleID)
}

func (r *TripRepo) FindNonTerminalByDriver(ctx context.Context, driverID string) (*domain.Trip, error) {
	return r.findOpen(ctx, "driver_id", driverID)
}

// findOpen returns (nil, nil) when no open trip exists. column is one of two
// fixed names, never caller input.
func (r *TripRepo) findOpen(ctx context.Context, column, id string) (*domain.Trip, error) {
	var doc []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT doc FROM trips
		WHERE `+column+` = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`, id, openStatuses()).Scan(&doc)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open trip by %s: %w", column, err)
	}
	return decodeTrip(doc)
}

// List returns trips matching filter, oldest first. No statuses means every open trip.
func (r *TripRepo) List(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	statuses := openStatuses()
	if len(f.Statuses) > 0 {
		statuses = make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT doc FROM trips
		WHERE ($1 = '' OR route_id = $1)
		  AND ($2 = '' OR sacco_id = $2)
		  AND ($3 = '' OR vehicle_id = $3)
		  AND status = ANY($4)
		ORDER BY created_at, id
	`, f.RouteID, f.SaccoID, f.VehicleID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		t, err := decodeTrip(doc)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func decodeTrip(doc []byte) (*domain.Trip, error) {
	var t domain.Trip
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode trip: %w", err)
	}
	return &t, nil
}
