package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/api/response"
	"github.com/gatewise/gatehub/internal/api/validation"
	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// WebhooksService defines the interface for webhook endpoint business logic.
type WebhooksService interface {
	CreateWebhook(ctx context.Context, req *models.CreateGateWebhookRequest) (*models.GateWebhook, error)
	GetWebhook(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error)
	ListWebhooks(ctx context.Context) ([]models.GateWebhook, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
}

// WebhooksHandler handles HTTP requests for notification endpoints.
type WebhooksHandler struct {
	service WebhooksService
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(service WebhooksService) *WebhooksHandler {
	return &WebhooksHandler{service: service}
}

// Create handles POST /v1/webhooks.
func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGateWebhookRequest

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

	webhook, err := h.service.CreateWebhook(r.Context(), &req)
	if err != nil {
		slog.Error("Failed to create webhook", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, webhook)
}

// Get handles GET /v1/webhooks/{id}.
func (h *WebhooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	webhook, err := h.service.GetWebhook(r.Context(), id)
	if err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Webhook not found")
			return
		}

		slog.Error("Failed to get webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, webhook)
}

// List handles GET /v1/webhooks.
func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.service.ListWebhooks(r.Context())
	if err != nil {
		slog.Error("Failed to list webhooks", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	if webhooks == nil {
		webhooks = []models.GateWebhook{}
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": webhooks})
}

// Update handles PATCH /v1/webhooks/{id}.
func (h *WebhooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.UpdateGateWebhookRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	webhook, err := h.service.UpdateWebhook(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Webhook not found")
			return
		}

		slog.Error("Failed to update webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, webhook)
}

// Delete handles DELETE /v1/webhooks/{id}.
func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteWebhook(r.Context(), id); err != nil {
		if errors.Is(err, gateerrors.ErrNotFound) {
			response.RespondNotFound(w, "Webhook not found")
			return
		}

		slog.Error("Failed to delete webhook", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
