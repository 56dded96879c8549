package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvitationState is the lifecycle state of an invitation. States move
// forward only: pending -> allowed. Re-entering allowed is a no-op.
type InvitationState string

const (
	InvitationPending InvitationState = "pending"
	InvitationAllowed InvitationState = "allowed"
)

// IsValid returns true when the state is a known value.
func (s InvitationState) IsValid() bool {
	return s == InvitationPending || s == InvitationAllowed
}

// String returns the state as a string.
func (s InvitationState) String() string {
	return string(s)
}

// ParseInvitationState parses a string into an InvitationState.
func ParseInvitationState(s string) (InvitationState, error) {
	state := InvitationState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid invitation state: %q", s)
	}

	return state, nil
}

// Invitation is a time-boxed authorization window for one identity.
// Invariant: StartTime <= EndTime.
type Invitation struct {
	ID         uuid.UUID       `json:"id"`
	IdentityID uuid.UUID       `json:"identity_id"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	State      InvitationState `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ActiveAt reports whether t falls within [StartTime, EndTime].
func (i *Invitation) ActiveAt(t time.Time) bool {
	return !t.Before(i.StartTime) && !t.After(i.EndTime)
}

// CreateInvitationRequest is the request to open a new invitation window.
// EndTime is optional; the server defaults it when absent.
type CreateInvitationRequest struct {
	EndTime *time.Time `json:"end_time,omitempty"`
}

// TransitionRequest is the request to move an invitation to a new state.
type TransitionRequest struct {
	State string `json:"state" validate:"required,oneof=pending allowed"`
}
