package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one append-only audit record, created exactly once per
// successful transition into the allowed state. Entries are never mutated
// or deleted.
type HistoryEntry struct {
	ID           uuid.UUID `json:"id"`
	IdentityID   uuid.UUID `json:"identity_id"`
	InvitationID uuid.UUID `json:"invitation_id"`
	Timestamp    time.Time `json:"timestamp"`
}
