package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is one enrolled person: a display name plus the face embedding
// captured at enrollment. The embedding is immutable once created.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrollRequest is the request to enroll a new identity.
// EndTime is the optional end of the initial invitation window; when nil the
// server applies its configured default (24h from enrollment).
type EnrollRequest struct {
	Name    string     `json:"name" validate:"required,min=1,max=100"`
	EndTime *time.Time `json:"end_time,omitempty"`
}
