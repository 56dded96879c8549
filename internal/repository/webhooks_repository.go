package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// WebhooksRepository handles data access for gate notification endpoints.
type WebhooksRepository struct {
	db *pgxpool.Pool
}

// NewWebhooksRepository creates a new webhooks repository.
func NewWebhooksRepository(db *pgxpool.Pool) *WebhooksRepository {
	return &WebhooksRepository{db: db}
}

const webhookColumns = `id, url, signing_key, enabled, disabled_reason, disabled_at, created_at`

func scanWebhook(row pgx.Row) (*models.GateWebhook, error) {
	var wh models.GateWebhook

	err := row.Scan(&wh.ID, &wh.URL, &wh.SigningKey, &wh.Enabled,
		&wh.DisabledReason, &wh.DisabledAt, &wh.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &wh, nil
}

// Create registers a new notification endpoint, enabled by default.
func (r *WebhooksRepository) Create(ctx context.Context, url, signingKey string) (*models.GateWebhook, error) {
	wh, err := scanWebhook(r.db.QueryRow(ctx, `
		INSERT INTO gate_webhooks (id, url, signing_key, enabled, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING `+webhookColumns,
		uuid.Must(uuid.NewV7()), url, signingKey, time.Now(),
	))
	if err != nil {
		return nil, fmt.Errorf("webhooks insert: %w", err)
	}

	return wh, nil
}

// GetByID returns one endpoint, signing key included (internal use only).
func (r *WebhooksRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error) {
	wh, err := scanWebhook(r.db.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM gate_webhooks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateerrors.NewNotFoundError("webhook", "")
		}

		return nil, fmt.Errorf("get webhook: %w", err)
	}

	return wh, nil
}

// ListEnabled returns the endpoints eligible for dispatch.
func (r *WebhooksRepository) ListEnabled(ctx context.Context) ([]models.GateWebhook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+webhookColumns+` FROM gate_webhooks WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list enabled webhooks: %w", err)
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

// List returns every registered endpoint.
func (r *WebhooksRepository) List(ctx context.Context) ([]models.GateWebhook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+webhookColumns+` FROM gate_webhooks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

// Update applies the non-nil fields of req to one endpoint.
func (r *WebhooksRepository) Update(
	ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest,
) (*models.GateWebhook, error) {
	sets := make([]string, 0, 3)
	args := []any{id}

	if req.Enabled != nil {
		args = append(args, *req.Enabled)
		sets = append(sets, fmt.Sprintf("enabled = $%d", len(args)))
	}

	if req.DisabledReason != nil {
		args = append(args, *req.DisabledReason)
		sets = append(sets, fmt.Sprintf("disabled_reason = $%d", len(args)))
	}

	if req.DisabledAt != nil {
		args = append(args, *req.DisabledAt)
		sets = append(sets, fmt.Sprintf("disabled_at = $%d", len(args)))
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	wh, err := scanWebhook(r.db.QueryRow(ctx,
		`UPDATE gate_webhooks SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+webhookColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateerrors.NewNotFoundError("webhook", "")
		}

		return nil, fmt.Errorf("update webhook: %w", err)
	}

	return wh, nil
}

// Delete removes an endpoint.
func (r *WebhooksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM gate_webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return gateerrors.NewNotFoundError("webhook", "")
	}

	return nil
}

func collectWebhooks(rows pgx.Rows) ([]models.GateWebhook, error) {
	var out []models.GateWebhook

	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}

		out = append(out, *wh)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}

	return out, nil
}
