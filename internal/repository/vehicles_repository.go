package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// VehiclesRepository handles data access for the vehicles table
// (plate-to-identity registrations).
type VehiclesRepository struct {
	db *pgxpool.Pool
}

// NewVehiclesRepository creates a new vehicles repository.
func NewVehiclesRepository(db *pgxpool.Pool) *VehiclesRepository {
	return &VehiclesRepository{db: db}
}

// Create registers a plate for an identity. Plates are unique across the site.
func (r *VehiclesRepository) Create(ctx context.Context, identityID uuid.UUID, plate string) (*models.Vehicle, error) {
	var vehicle models.Vehicle

	err := r.db.QueryRow(ctx, `
		INSERT INTO vehicles (id, identity_id, plate, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, identity_id, plate, created_at`,
		uuid.Must(uuid.NewV7()), identityID, plate, time.Now(),
	).Scan(&vehicle.ID, &vehicle.IdentityID, &vehicle.Plate, &vehicle.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique violation
			slog.Warn("vehicle registration rejected: duplicate plate", "plate", plate)

			return nil, gateerrors.NewValidationError("plate",
				fmt.Sprintf("plate %q is already registered", plate))
		}

		return nil, fmt.Errorf("vehicles insert: %w", err)
	}

	return &vehicle, nil
}

// GetByPlate returns the registration for a canonical plate string.
func (r *VehiclesRepository) GetByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	var vehicle models.Vehicle

	err := r.db.QueryRow(ctx,
		`SELECT id, identity_id, plate, created_at FROM vehicles WHERE plate = $1`,
		plate,
	).Scan(&vehicle.ID, &vehicle.IdentityID, &vehicle.Plate, &vehicle.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateerrors.NewNotFoundError("vehicle", "")
		}

		return nil, fmt.Errorf("get vehicle: %w", err)
	}

	return &vehicle, nil
}

// ListByIdentity returns the plates registered to one identity.
func (r *VehiclesRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.Vehicle, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, identity_id, plate, created_at FROM vehicles WHERE identity_id = $1 ORDER BY created_at`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle

	for rows.Next() {
		var vehicle models.Vehicle

		if err := rows.Scan(&vehicle.ID, &vehicle.IdentityID, &vehicle.Plate, &vehicle.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}

		vehicles = append(vehicles, vehicle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vehicles: %w", err)
	}

	return vehicles, nil
}
