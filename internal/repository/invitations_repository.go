package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// InvitationsRepository handles data access for the invitations table.
type InvitationsRepository struct {
	db *pgxpool.Pool
}

// NewInvitationsRepository creates a new invitations repository.
func NewInvitationsRepository(db *pgxpool.Pool) *InvitationsRepository {
	return &InvitationsRepository{db: db}
}

const invitationColumns = `id, identity_id, start_time, end_time, state, created_at`

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation

	err := row.Scan(&inv.ID, &inv.IdentityID, &inv.StartTime, &inv.EndTime, &inv.State, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// Create inserts a new invitation window for an identity.
func (r *InvitationsRepository) Create(
	ctx context.Context, identityID uuid.UUID, start, end time.Time, state models.InvitationState,
) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, `
		INSERT INTO invitations (id, identity_id, start_time, end_time, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationColumns,
		uuid.Must(uuid.NewV7()), identityID, start, end, state, time.Now(),
	))
	if err != nil {
		return nil, fmt.Errorf("invitations insert: %w", err)
	}

	return inv, nil
}

// GetByID returns one invitation.
func (r *InvitationsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateerrors.NewNotFoundError("invitation", "")
		}

		return nil, fmt.Errorf("get invitation: %w", err)
	}

	return inv, nil
}

// ListActiveAt returns the invitations whose window contains at, ordered by
// start_time ascending. Overlap resolution (latest start wins) is the
// ledger's job, not the query's.
func (r *InvitationsRepository) ListActiveAt(
	ctx context.Context, identityID uuid.UUID, at time.Time,
) ([]models.Invitation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE identity_id = $1 AND start_time <= $2 AND end_time >= $2
		ORDER BY start_time, created_at`,
		identityID, at)
	if err != nil {
		return nil, fmt.Errorf("list active invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

// ListByIdentity returns all invitations for an identity, newest window first.
func (r *InvitationsRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE identity_id = $1
		ORDER BY start_time DESC`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

// SetState updates the lifecycle state of one invitation.
func (r *InvitationsRepository) SetState(ctx context.Context, id uuid.UUID, state models.InvitationState) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invitations SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set invitation state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return gateerrors.NewNotFoundError("invitation", "")
	}

	return nil
}

func collectInvitations(rows pgx.Rows) ([]models.Invitation, error) {
	var out []models.Invitation

	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}

		out = append(out, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitations: %w", err)
	}

	return out, nil
}
