package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/service"
)

// mockLedgerService is a func-field mock of LedgerService.
type mockLedgerService struct {
	createFn     func(ctx context.Context, identityID uuid.UUID, req *models.CreateInvitationRequest) (*models.Invitation, error)
	getFn        func(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	listFn       func(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error)
	transitionFn func(ctx context.Context, invitationID uuid.UUID, target models.InvitationState) (*service.TransitionResult, error)
	historyFn    func(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error)
}

func (m *mockLedgerService) CreateInvitation(ctx context.Context, identityID uuid.UUID, req *models.CreateInvitationRequest) (*models.Invitation, error) {
	return m.createFn(ctx, identityID, req)
}

func (m *mockLedgerService) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return m.getFn(ctx, id)
}

func (m *mockLedgerService) ListInvitations(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error) {
	return m.listFn(ctx, identityID)
}

func (m *mockLedgerService) Transition(ctx context.Context, invitationID uuid.UUID, target models.InvitationState) (*service.TransitionResult, error) {
	return m.transitionFn(ctx, invitationID, target)
}

func (m *mockLedgerService) History(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error) {
	return m.historyFn(ctx, identityID)
}

func patchRequest(t *testing.T, id uuid.UUID, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPatch, "/v1/invitations/"+id.String(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", id.String())

	return req
}

func TestInvitationsHandler_Transition(t *testing.T) {
	invitationID := uuid.Must(uuid.NewV7())

	t.Run("applies a transition", func(t *testing.T) {
		svc := &mockLedgerService{
			transitionFn: func(_ context.Context, id uuid.UUID, target models.InvitationState) (*service.TransitionResult, error) {
				assert.Equal(t, invitationID, id)
				assert.Equal(t, models.InvitationAllowed, target)

				return &service.TransitionResult{
					Invitation: &models.Invitation{ID: id, State: models.InvitationAllowed},
					Changed:    true,
				}, nil
			},
		}

		handler := NewInvitationsHandler(svc)
		rec := httptest.NewRecorder()

		handler.Transition(rec, patchRequest(t, invitationID, `{"state":"allowed"}`))

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Changed bool   `json:"changed"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Changed)
	})

	t.Run("reports the idempotent no-op", func(t *testing.T) {
		svc := &mockLedgerService{
			transitionFn: func(_ context.Context, id uuid.UUID, _ models.InvitationState) (*service.TransitionResult, error) {
				return &service.TransitionResult{
					Invitation: &models.Invitation{ID: id, State: models.InvitationAllowed},
					Changed:    false,
					Message:    "already allowed",
				}, nil
			},
		}

		handler := NewInvitationsHandler(svc)
		rec := httptest.NewRecorder()

		handler.Transition(rec, patchRequest(t, invitationID, `{"state":"allowed"}`))

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Changed bool   `json:"changed"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Changed)
		assert.Equal(t, "already allowed", body.Message)
	})

	t.Run("unknown invitation maps to 404", func(t *testing.T) {
		svc := &mockLedgerService{
			transitionFn: func(context.Context, uuid.UUID, models.InvitationState) (*service.TransitionResult, error) {
				return nil, gateerrors.NewNotFoundError("invitation", "")
			},
		}

		handler := NewInvitationsHandler(svc)
		rec := httptest.NewRecorder()

		handler.Transition(rec, patchRequest(t, invitationID, `{"state":"allowed"}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects an unknown state", func(t *testing.T) {
		handler := NewInvitationsHandler(&mockLedgerService{})
		rec := httptest.NewRecorder()

		handler.Transition(rec, patchRequest(t, invitationID, `{"state":"revoked"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		handler := NewInvitationsHandler(&mockLedgerService{})

		req := httptest.NewRequest(http.MethodPatch, "/v1/invitations/not-a-uuid", strings.NewReader(`{"state":"allowed"}`))
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()

		handler.Transition(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInvitationsHandler_Create(t *testing.T) {
	identityID := uuid.Must(uuid.NewV7())

	t.Run("empty body opens a default window", func(t *testing.T) {
		svc := &mockLedgerService{
			createFn: func(_ context.Context, id uuid.UUID, req *models.CreateInvitationRequest) (*models.Invitation, error) {
				assert.Equal(t, identityID, id)
				assert.Nil(t, req.EndTime)

				return &models.Invitation{ID: uuid.Must(uuid.NewV7()), IdentityID: id, State: models.InvitationPending}, nil
			},
		}

		handler := NewInvitationsHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/v1/identities/"+identityID.String()+"/invitations", nil)
		req.SetPathValue("id", identityID.String())
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("invalid range maps to 400", func(t *testing.T) {
		svc := &mockLedgerService{
			createFn: func(context.Context, uuid.UUID, *models.CreateInvitationRequest) (*models.Invitation, error) {
				return nil, gateerrors.NewValidationError("end_time", "end_time must be after start_time")
			},
		}

		handler := NewInvitationsHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/v1/identities/"+identityID.String()+"/invitations",
			strings.NewReader(`{"end_time":"2020-01-01T00:00:00Z"}`))
		req.Header.Set("Content-Type", "application/json")
		req.SetPathValue("id", identityID.String())
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
