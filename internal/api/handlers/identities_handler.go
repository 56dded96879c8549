package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/api/response"
	"github.com/gatewise/gatehub/internal/api/validation"
	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// IdentitiesService defines the enrollment operations the handler needs.
type IdentitiesService interface {
	Enroll(ctx context.Context, req *models.EnrollRequest, image []byte) (*models.Identity, *models.Invitation, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
}

// IdentitiesHandler handles HTTP requests for identity enrollment.
type IdentitiesHandler struct {
	service IdentitiesService
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(service IdentitiesService) *IdentitiesHandler {
	return &IdentitiesHandler{service: service}
}

// enrollResponse pairs the new identity with its first invitation window.
type enrollResponse struct {
	Identity   *models.Identity   `json:"identity"`
	Invitation *models.Invitation `json:"invitation"`
}

// Enroll handles POST /v1/identities. The multipart body carries "name",
// optional "end_time" (RFC3339), and the face image under "image".
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r, "image")
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	req := &models.EnrollRequest{Name: r.FormValue("name")}

	if raw := r.FormValue("end_time"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.RespondBadRequest(w, "end_time must be RFC3339")
			return
		}

		req.EndTime = &end
	}

	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	identity, invitation, err := h.service.Enroll(r.Context(), req, image)
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	// A nil invitation means the face matched an existing enrollment.
	status := http.StatusCreated
	if invitation == nil {
		status = http.StatusOK
	}

	response.RespondJSON(w, status, enrollResponse{Identity: identity, Invitation: invitation})
}

// Get handles GET /v1/identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	identity, err := h.service.GetIdentity(r.Context(), id)
	if err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Identity not found")
			return
		}

		slog.Error("Failed to get identity", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, identity)
}

// List handles GET /v1/identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.service.ListIdentities(r.Context())
	if err != nil {
		slog.Error("Failed to list identities", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	if identities == nil {
		identities = []models.Identity{}
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": identities})
}

// Delete handles DELETE /v1/identities/{id}.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteIdentity(r.Context(), id); err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Identity not found")
			return
		}

		slog.Error("Failed to delete identity", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses the named path value as a UUID, writing the error response
// itself on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		response.RespondBadRequest(w, name+" is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return uuid.Nil, false
	}

	return id, true
}
