package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// EventType identifies what happened at the gate.
type EventType string

// Gate event types delivered to webhook endpoints.
const (
	EventEntryAllowed     EventType = "gate.entry_allowed"
	EventEntryDenied      EventType = "gate.entry_denied"
	EventIdentityEnrolled EventType = "identity.enrolled"
	EventPlateRecognized  EventType = "plate.recognized"
)

// String returns the event type as a string.
func (t EventType) String() string { return string(t) }

// GateEvent is one occurrence to fan out to webhook endpoints.
type GateEvent struct {
	ID        uuid.UUID
	Type      EventType
	Timestamp time.Time
	Data      any
}

// NewGateEvent builds an event with a fresh time-ordered ID.
func NewGateEvent(t EventType, data any) GateEvent {
	return GateEvent{
		ID:        uuid.Must(uuid.NewV7()),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

const gateEventDispatchKind = "gate_event_dispatch"

// GateEventDispatchArgs is the job payload for one (event, webhook) delivery.
// Only event_id and webhook_id feed River uniqueness (river:"unique") so the
// hash stays fast and excludes the data payload.
type GateEventDispatchArgs struct {
	EventID   uuid.UUID `json:"event_id"   river:"unique"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	WebhookID uuid.UUID `json:"webhook_id" river:"unique"`
}

// Kind returns the River job kind.
func (GateEventDispatchArgs) Kind() string { return gateEventDispatchKind }

var _ river.JobArgs = GateEventDispatchArgs{}
