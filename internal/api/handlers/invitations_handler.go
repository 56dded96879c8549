package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/api/response"
	"github.com/gatewise/gatehub/internal/api/validation"
	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/service"
)

// LedgerService defines the invitation ledger operations the handler needs.
type LedgerService interface {
	CreateInvitation(ctx context.Context, identityID uuid.UUID, req *models.CreateInvitationRequest) (*models.Invitation, error)
	GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	ListInvitations(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error)
	Transition(ctx context.Context, invitationID uuid.UUID, target models.InvitationState) (*service.TransitionResult, error)
	History(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error)
}

// InvitationsHandler handles HTTP requests for invitation windows.
type InvitationsHandler struct {
	ledger LedgerService
}

// NewInvitationsHandler creates a new invitations handler.
func NewInvitationsHandler(ledger LedgerService) *InvitationsHandler {
	return &InvitationsHandler{ledger: ledger}
}

// Create handles POST /v1/identities/{id}/invitations.
func (h *InvitationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.CreateInvitationRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	// An empty body means "use the default window".
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	inv, err := h.ledger.CreateInvitation(r.Context(), identityID, &req)
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, inv)
}

// List handles GET /v1/identities/{id}/invitations.
func (h *InvitationsHandler) List(w http.ResponseWriter, r *http.Request) {
	identityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	invitations, err := h.ledger.ListInvitations(r.Context(), identityID)
	if err != nil {
		slog.Error("Failed to list invitations", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	if invitations == nil {
		invitations = []models.Invitation{}
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": invitations})
}

// transitionResponse reports an applied (or idempotently skipped) transition.
type transitionResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Changed    bool               `json:"changed"`
	Message    string             `json:"message,omitempty"`
}

// Transition handles PATCH /v1/invitations/{id}.
func (h *InvitationsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.TransitionRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.ledger.Transition(r.Context(), invitationID, models.InvitationState(req.State))
	if err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Invitation not found")
			return
		}

		respondAccessError(w, r, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, transitionResponse{
		Invitation: result.Invitation,
		Changed:    result.Changed,
		Message:    result.Message,
	})
}

// GetHistory handles GET /v1/identities/{id}/history.
func (h *InvitationsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	identityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	history, err := h.ledger.History(r.Context(), identityID)
	if err != nil {
		slog.Error("Failed to list history", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	if history == nil {
		history = []models.HistoryEntry{}
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": history})
}
