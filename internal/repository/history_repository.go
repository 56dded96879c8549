package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatehub/internal/models"
)

// HistoryRepository handles data access for the append-only history_entries
// table. There are deliberately no update or delete methods.
type HistoryRepository struct {
	db *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one transition into the allowed state.
func (r *HistoryRepository) Append(
	ctx context.Context, identityID, invitationID uuid.UUID, at time.Time,
) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry

	err := r.db.QueryRow(ctx, `
		INSERT INTO history_entries (id, identity_id, invitation_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, identity_id, invitation_id, created_at`,
		uuid.Must(uuid.NewV7()), identityID, invitationID, at,
	).Scan(&entry.ID, &entry.IdentityID, &entry.InvitationID, &entry.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("history insert: %w", err)
	}

	return &entry, nil
}

// ListByIdentity returns the identity's audit trail, oldest first.
func (r *HistoryRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, identity_id, invitation_id, created_at
		FROM history_entries
		WHERE identity_id = $1
		ORDER BY created_at, id`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry

	for rows.Next() {
		var entry models.HistoryEntry

		if err := rows.Scan(&entry.ID, &entry.IdentityID, &entry.InvitationID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return entries, nil
}
