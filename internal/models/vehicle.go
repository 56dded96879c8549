package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle links a canonical license plate string to its owning identity.
type Vehicle struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	Plate      string    `json:"plate"`
	CreatedAt  time.Time `json:"created_at"`
}

// RegisterVehicleRequest is the request to register a plate for an identity.
type RegisterVehicleRequest struct {
	IdentityID string `json:"identity_id" validate:"required,uuid"`
	Plate      string `json:"plate" validate:"required,min=1,max=50"`
}
