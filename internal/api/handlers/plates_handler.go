package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/api/response"
	"github.com/gatewise/gatehub/internal/api/validation"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/service"
)

// PlatesService defines the plate recognition operations the handler needs.
type PlatesService interface {
	Recognize(ctx context.Context, image []byte) (*service.PlateRecognition, error)
	RegisterVehicle(ctx context.Context, req *models.RegisterVehicleRequest) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, identityID uuid.UUID) ([]models.Vehicle, error)
}

// PlatesHandler handles HTTP requests for plate recognition and the vehicle
// registry.
type PlatesHandler struct {
	service PlatesService
}

// NewPlatesHandler creates a new plates handler.
func NewPlatesHandler(service PlatesService) *PlatesHandler {
	return &PlatesHandler{service: service}
}

// Recognize handles POST /v1/plates/recognize. The multipart body carries the
// gate camera frame under "image".
func (h *PlatesHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r, "image")
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	rec, err := h.service.Recognize(r.Context(), image)
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, rec)
}

// RegisterVehicle handles POST /v1/vehicles.
func (h *PlatesHandler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterVehicleRequest

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

	vehicle, err := h.service.RegisterVehicle(r.Context(), &req)
	if err != nil {
		respondAccessError(w, r, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, vehicle)
}

// ListVehicles handles GET /v1/identities/{id}/vehicles.
func (h *PlatesHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	identityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	vehicles, err := h.service.ListVehicles(r.Context(), identityID)
	if err != nil {
		slog.Error("Failed to list vehicles", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": vehicles})
}
