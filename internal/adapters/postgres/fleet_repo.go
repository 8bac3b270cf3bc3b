package postgres

import (
	"context"
	"fmt"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// FleetRepo implements ports.FleetRegistry over the vehicles and drivers tables.
type FleetRepo struct {
	db *DB
}

func NewFleetRepo(db *DB) *FleetRepo { return &FleetRepo{db: db} }

func (r *FleetRepo) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, sacco_id, plate, capacity, in_service, presence FROM vehicles WHERE id = $1
	`, id).Scan(&v.ID, &v.SaccoID, &v.Plate, &v.Capacity, &v.InService, &v.Presence)
	if isNoRows(err) {
		return nil, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	return &v, nil
}

func (r *FleetRepo) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	var d domain.Driver
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, sacco_id, name, active, presence FROM drivers WHERE id = $1
	`, id).Scan(&d.ID, &d.SaccoID, &d.Name, &d.Active, &d.Presence)
	if isNoRows(err) {
		return nil, fmt.Errorf("driver %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", id, err)
	}
	return &d, nil
}

func (r *FleetRepo) SetVehiclePresence(ctx context.Context, id string, p domain.Presence) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE vehicles SET presence = $2, updated_at = now() WHERE id = $1
	`, id, string(p))
	if err != nil {
		return fmt.Errorf("set vehicle %s presence: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *FleetRepo) SetDriverPresence(ctx context.Context, id string, p domain.Presence) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE drivers SET presence = $2, updated_at = now() WHERE id = $1
	`, id, string(p))
	if err != nil {
		return fmt.Errorf("set driver %s presence: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
