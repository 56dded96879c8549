package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/gatewise/gatehub/internal/models"
)

// mockWebhooksRepo is a func-field mock of WebhooksRepository.
type mockWebhooksRepo struct {
	createFn      func(ctx context.Context, url, signingKey string) (*models.GateWebhook, error)
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error)
	listFn        func(ctx context.Context) ([]models.GateWebhook, error)
	listEnabledFn func(ctx context.Context) ([]models.GateWebhook, error)
	updateFn      func(ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error)
	deleteFn      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockWebhooksRepo) Create(ctx context.Context, url, signingKey string) (*models.GateWebhook, error) {
	return m.createFn(ctx, url, signingKey)
}

func (m *mockWebhooksRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error) {
	return m.getByIDFn(ctx, id)
}

func (m *mockWebhooksRepo) List(ctx context.Context) ([]models.GateWebhook, error) {
	return m.listFn(ctx)
}

func (m *mockWebhooksRepo) ListEnabled(ctx context.Context) ([]models.GateWebhook, error) {
	return m.listEnabledFn(ctx)
}

func (m *mockWebhooksRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockWebhooksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

const testSigningKey = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func testDispatchArgs() *GateEventDispatchArgs {
	return &GateEventDispatchArgs{
		EventID:   uuid.Must(uuid.NewV7()),
		EventType: EventEntryAllowed.String(),
		Timestamp: time.Now(),
		Data:      map[string]any{"name": "alice"},
		WebhookID: uuid.Must(uuid.NewV7()),
	}
}

func TestSigningWebhookSender_Send(t *testing.T) {
	t.Run("signs the payload per Standard Webhooks", func(t *testing.T) {
		var gotHeaders http.Header

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		sender := NewSigningWebhookSender(&mockWebhooksRepo{})
		webhook := &models.GateWebhook{ID: uuid.Must(uuid.NewV7()), URL: server.URL, SigningKey: testSigningKey}

		err := sender.Send(context.Background(), webhook, testDispatchArgs())
		require.NoError(t, err)

		assert.NotEmpty(t, gotHeaders.Get(standardwebhooks.HeaderWebhookID))
		assert.NotEmpty(t, gotHeaders.Get(standardwebhooks.HeaderWebhookSignature))
		assert.NotEmpty(t, gotHeaders.Get(standardwebhooks.HeaderWebhookTimestamp))
		assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	})

	t.Run("410 disables the endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer server.Close()

		var disabled bool

		repo := &mockWebhooksRepo{
			updateFn: func(_ context.Context, _ uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error) {
				require.NotNil(t, req.Enabled)
				assert.False(t, *req.Enabled)
				disabled = true

				return &models.GateWebhook{}, nil
			},
		}

		sender := NewSigningWebhookSender(repo)
		webhook := &models.GateWebhook{ID: uuid.Must(uuid.NewV7()), URL: server.URL, SigningKey: testSigningKey}

		err := sender.Send(context.Background(), webhook, testDispatchArgs())
		require.Error(t, err)
		assert.True(t, disabled)
	})

	t.Run("non-2xx is an error without disabling", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		sender := NewSigningWebhookSender(&mockWebhooksRepo{})
		webhook := &models.GateWebhook{ID: uuid.Must(uuid.NewV7()), URL: server.URL, SigningKey: testSigningKey}

		err := sender.Send(context.Background(), webhook, testDispatchArgs())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-2xx")
	})
}

func TestWebhooksService_CreateWebhook(t *testing.T) {
	t.Run("generates a signing key when absent", func(t *testing.T) {
		repo := &mockWebhooksRepo{
			createFn: func(_ context.Context, url, signingKey string) (*models.GateWebhook, error) {
				assert.Contains(t, signingKey, "whsec_")

				return &models.GateWebhook{URL: url, SigningKey: signingKey}, nil
			},
		}

		svc := NewWebhooksService(repo)

		wh, err := svc.CreateWebhook(context.Background(),
			&models.CreateGateWebhookRequest{URL: "https://example.com/hook"})
		require.NoError(t, err)
		assert.NotEmpty(t, wh.SigningKey)
	})

	t.Run("keeps a caller-supplied key", func(t *testing.T) {
		repo := &mockWebhooksRepo{
			createFn: func(_ context.Context, _, signingKey string) (*models.GateWebhook, error) {
				return &models.GateWebhook{SigningKey: signingKey}, nil
			},
		}

		svc := NewWebhooksService(repo)

		wh, err := svc.CreateWebhook(context.Background(),
			&models.CreateGateWebhookRequest{URL: "https://example.com/hook", SigningKey: testSigningKey})
		require.NoError(t, err)
		assert.Equal(t, testSigningKey, wh.SigningKey)
	})
}
