package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/observability"
	"github.com/gatewise/gatehub/internal/plate"
	"github.com/gatewise/gatehub/internal/vision"
)

// VehiclesRepository defines the interface for plate registrations.
type VehiclesRepository interface {
	Create(ctx context.Context, identityID uuid.UUID, plate string) (*models.Vehicle, error)
	GetByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.Vehicle, error)
}

// PlateRecognition is the outcome of one plate read.
type PlateRecognition struct {
	// Fragments are the two canonical half-plate strings, left then right.
	Fragments []string `json:"fragments"`
	// Plate is the joined canonical string used for registry lookup.
	Plate string `json:"plate"`
	// DebugImage is the annotated composite path, empty when not written.
	DebugImage string `json:"debug_image,omitempty"`
	// Vehicle is the matching registration, nil when the plate is unregistered.
	Vehicle *models.Vehicle `json:"vehicle,omitempty"`
}

// PlateService turns a gate camera frame into a canonical plate string and
// looks it up in the vehicle registry.
type PlateService struct {
	reader    vision.PlateReader
	assembler *plate.Assembler
	vehicles  VehiclesRepository
	publisher eventPublisher
	metrics   observability.GateMetrics
}

// PlateParams holds the dependencies for NewPlateService.
type PlateParams struct {
	Reader    vision.PlateReader
	Assembler *plate.Assembler
	Vehicles  VehiclesRepository
	// Publisher may be nil when gate notifications are disabled.
	Publisher eventPublisher
	// Metrics may be nil when metrics are disabled.
	Metrics observability.GateMetrics
}

// NewPlateService creates a new plate recognition service.
func NewPlateService(p PlateParams) *PlateService {
	return &PlateService{
		reader:    p.Reader,
		assembler: p.Assembler,
		vehicles:  p.Vehicles,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// Recognize scans the frame, assembles the canonical plate text, and matches
// it against the registry. An unregistered plate is a valid result, not an
// error; only detector failures propagate.
func (s *PlateService) Recognize(ctx context.Context, image []byte) (*PlateRecognition, error) {
	scan, err := s.reader.ReadPlate(ctx, image)
	if err != nil {
		s.recordScan(ctx, plateOutcomeForError(err))

		return nil, err
	}

	assembled := s.assembler.Assemble(ctx, scan.Left, scan.Right, scan.LeftHalf, scan.RightHalf)

	rec := &PlateRecognition{
		Fragments:  assembled.Fragments,
		Plate:      strings.Join(assembled.Fragments, ""),
		DebugImage: assembled.DebugImage,
	}

	if rec.Plate == "" {
		s.recordScan(ctx, "no_plate")

		return nil, gateerrors.NewNoPlateError("no readable text on plate")
	}

	vehicle, err := s.vehicles.GetByPlate(ctx, rec.Plate)
	switch {
	case err == nil:
		rec.Vehicle = vehicle

		s.recordScan(ctx, "matched")
	case errors.Is(err, gateerrors.ErrNotFound):
		s.recordScan(ctx, "unregistered")
	default:
		s.recordScan(ctx, "error")

		return nil, err
	}

	if s.publisher != nil {
		data := map[string]any{"plate": rec.Plate, "registered": rec.Vehicle != nil}
		if rec.Vehicle != nil {
			data["identity_id"] = rec.Vehicle.IdentityID
		}

		s.publisher.PublishEvent(ctx, NewGateEvent(EventPlateRecognized, data))
	}

	return rec, nil
}

// RegisterVehicle records a plate for an identity.
func (s *PlateService) RegisterVehicle(ctx context.Context, req *models.RegisterVehicleRequest) (*models.Vehicle, error) {
	identityID, err := uuid.Parse(req.IdentityID)
	if err != nil {
		return nil, gateerrors.NewValidationError("identity_id", "identity_id must be a UUID")
	}

	canonical := strings.ReplaceAll(req.Plate, " ", "")
	if canonical == "" {
		return nil, gateerrors.NewValidationError("plate", "plate must not be empty")
	}

	return s.vehicles.Create(ctx, identityID, canonical)
}

// ListVehicles returns the plates registered to one identity.
func (s *PlateService) ListVehicles(ctx context.Context, identityID uuid.UUID) ([]models.Vehicle, error) {
	return s.vehicles.ListByIdentity(ctx, identityID)
}

func (s *PlateService) recordScan(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPlateScan(ctx, outcome)
	}
}

func plateOutcomeForError(err error) string {
	if errors.Is(err, gateerrors.ErrNoPlate) {
		return "no_plate"
	}

	return "error"
}
