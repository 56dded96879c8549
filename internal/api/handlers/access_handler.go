// Package handlers contains the HTTP handlers for the gate engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatewise/gatehub/internal/api/response"
	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// AccessService defines the decision operations the access handler needs.
type AccessService interface {
	ResolveImage(ctx context.Context, image []byte, requestedState *models.InvitationState) (*models.DecisionResult, error)
	Resolve(ctx context.Context, probe []float32, requestedState *models.InvitationState, now time.Time) (*models.DecisionResult, error)
}

// AccessHandler handles HTTP requests for access resolution.
type AccessHandler struct {
	service AccessService
}

// NewAccessHandler creates a new access handler.
func NewAccessHandler(service AccessService) *AccessHandler {
	return &AccessHandler{service: service}
}

// resolveRequest is the JSON body for embedding-based resolution.
type resolveRequest struct {
	Embedding      []float32 `json:"embedding"`
	RequestedState *string   `json:"requested_state,omitempty"`
}

// Resolve handles POST /v1/access/resolve. A multipart body carries the probe
// image under "image" (the embedder sidecar computes the vector); a JSON body
// carries a precomputed embedding.
func (h *AccessHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var (
		result *models.DecisionResult
		err    error
	)

	if isMultipart(r) {
		result, err = h.resolveFromImage(r)
	} else {
		result, err = h.resolveFromJSON(r)
	}

	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

func (h *AccessHandler) resolveFromImage(r *http.Request) (*models.DecisionResult, error) {
	image, err := readImageFile(r, "image")
	if err != nil {
		return nil, err
	}

	state, err := parseRequestedState(r.FormValue("requested_state"))
	if err != nil {
		return nil, err
	}

	return h.service.ResolveImage(r.Context(), image, state)
}

func (h *AccessHandler) resolveFromJSON(r *http.Request) (*models.DecisionResult, error) {
	var req resolveRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, gateerrors.NewValidationError("body", "invalid request body")
	}

	if len(req.Embedding) == 0 {
		return nil, gateerrors.NewValidationError("embedding", "embedding is required")
	}

	var state *models.InvitationState
	if req.RequestedState != nil {
		var err error

		state, err = parseRequestedState(*req.RequestedState)
		if err != nil {
			return nil, err
		}
	}

	return h.service.Resolve(r.Context(), req.Embedding, state, time.Now())
}

func parseRequestedState(raw string) (*models.InvitationState, error) {
	if raw == "" {
		return nil, nil
	}

	state, err := models.ParseInvitationState(raw)
	if err != nil {
		return nil, gateerrors.NewValidationError("requested_state", "requested_state must be pending or allowed")
	}

	return &state, nil
}

func isMultipart(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")

	return contentType != "" && len(contentType) >= 9 && contentType[:9] == "multipart"
}

// maxImageMemory bounds the in-memory part of multipart parsing.
const maxImageMemory = 8 << 20

// readImageFile reads one uploaded file part fully into memory.
func readImageFile(r *http.Request, field string) ([]byte, error) {
	if err := r.ParseMultipartForm(maxImageMemory); err != nil {
		return nil, gateerrors.NewValidationError(field, "invalid multipart body")
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, gateerrors.NewValidationError(field, field+" file is required")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close uploaded file", "field", field, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, gateerrors.NewValidationError(field, "failed to read "+field)
	}

	return data, nil
}

// respondAccessError maps the error taxonomy onto HTTP statuses.
func respondAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gateerrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, gateerrors.ErrDimensionMismatch):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, gateerrors.ErrNoFace):
		response.RespondUnprocessableEntity(w, err.Error())
	case errors.Is(err, gateerrors.ErrNoPlate):
		response.RespondUnprocessableEntity(w, err.Error())
	case errors.Is(err, gateerrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}
