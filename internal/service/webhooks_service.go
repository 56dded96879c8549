package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/models"
)

// WebhooksRepository defines the interface for webhook endpoint data access.
type WebhooksRepository interface {
	Create(ctx context.Context, url, signingKey string) (*models.GateWebhook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error)
	List(ctx context.Context) ([]models.GateWebhook, error)
	ListEnabled(ctx context.Context) ([]models.GateWebhook, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// WebhooksService handles business logic for notification endpoints.
type WebhooksService struct {
	repo WebhooksRepository
}

// NewWebhooksService creates a new webhooks service.
func NewWebhooksService(repo WebhooksRepository) *WebhooksService {
	return &WebhooksService{repo: repo}
}

// CreateWebhook registers a new endpoint, generating a signing key when the
// caller does not supply one.
func (s *WebhooksService) CreateWebhook(ctx context.Context, req *models.CreateGateWebhookRequest) (*models.GateWebhook, error) {
	key := req.SigningKey
	if key == "" {
		var err error

		key, err = generateSigningKey()
		if err != nil {
			return nil, err
		}
	}

	return s.repo.Create(ctx, req.URL, key)
}

// generateSigningKey generates a signing key in the format expected by
// Standard Webhooks: "whsec_" + base64(32 random bytes).
func generateSigningKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}

	return "whsec_" + base64.StdEncoding.EncodeToString(key), nil
}

// GetWebhook retrieves one endpoint by ID.
func (s *WebhooksService) GetWebhook(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error) {
	return s.repo.GetByID(ctx, id)
}

// ListWebhooks retrieves every registered endpoint.
func (s *WebhooksService) ListWebhooks(ctx context.Context) ([]models.GateWebhook, error) {
	return s.repo.List(ctx)
}

// UpdateWebhook applies a partial update to one endpoint. Re-enabling an
// endpoint clears its disabled bookkeeping.
func (s *WebhooksService) UpdateWebhook(
	ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest,
) (*models.GateWebhook, error) {
	if req.Enabled != nil && *req.Enabled && req.DisabledReason == nil {
		empty := ""
		epoch := time.Time{}
		req.DisabledReason = &empty
		req.DisabledAt = &epoch
	}

	return s.repo.Update(ctx, id, req)
}

// DeleteWebhook removes one endpoint.
func (s *WebhooksService) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
