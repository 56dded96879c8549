// Package repository contains the pgx data-access layer for the gate engine.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// IdentitiesRepository handles data access for the identities table.
type IdentitiesRepository struct {
	db *pgxpool.Pool
}

// NewIdentitiesRepository creates a new identities repository.
func NewIdentitiesRepository(db *pgxpool.Pool) *IdentitiesRepository {
	return &IdentitiesRepository{db: db}
}

// Create inserts a new identity with its enrollment embedding. The row is
// published atomically by the single INSERT, so a concurrent ListAll never
// observes a partial record.
func (r *IdentitiesRepository) Create(ctx context.Context, name string, embedding []float32) (*models.Identity, error) {
	vec := pgvector.NewVector(embedding)
	now := time.Now()

	var identity models.Identity

	err := r.db.QueryRow(ctx, `
		INSERT INTO identities (id, name, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, created_at`,
		uuid.Must(uuid.NewV7()), name, vec, now,
	).Scan(&identity.ID, &identity.Name, &identity.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("identities insert: %w", err)
	}

	identity.Embedding = embedding

	return &identity, nil
}

// GetByID returns one identity, embedding included.
func (r *IdentitiesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var (
		identity models.Identity
		vec      pgvector.Vector
	)

	err := r.db.QueryRow(ctx,
		`SELECT id, name, embedding, created_at FROM identities WHERE id = $1`,
		id,
	).Scan(&identity.ID, &identity.Name, &vec, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateerrors.NewNotFoundError("identity", "")
		}

		return nil, fmt.Errorf("get identity: %w", err)
	}

	identity.Embedding = vec.Slice()

	return &identity, nil
}

// ListAll returns every enrolled identity with its embedding, ordered by
// creation time. The stable ordering keeps the matcher's first-encountered
// tie-break deterministic across calls.
func (r *IdentitiesRepository) ListAll(ctx context.Context) ([]models.Identity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, embedding, created_at FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity

	for rows.Next() {
		var (
			identity models.Identity
			vec      pgvector.Vector
		)

		if err := rows.Scan(&identity.ID, &identity.Name, &vec, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}

		identity.Embedding = vec.Slice()
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}

	return identities, nil
}

// Delete removes an identity; its invitations and history cascade at the
// schema level (identities own their invitations exclusively).
func (r *IdentitiesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return gateerrors.NewNotFoundError("identity", "")
	}

	return nil
}
