package models

import (
	"time"

	"github.com/google/uuid"
)

// GateWebhook is an endpoint notified when an identity is allowed through
// the gate. Disabled endpoints are skipped by the dispatcher.
type GateWebhook struct {
	ID             uuid.UUID  `json:"id"`
	URL            string     `json:"url"`
	SigningKey     string     `json:"signing_key"`
	Enabled        bool       `json:"enabled"`
	DisabledReason *string    `json:"disabled_reason,omitempty"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateGateWebhookRequest is the request to register a notification endpoint.
// SigningKey is generated server side when omitted.
type CreateGateWebhookRequest struct {
	URL        string `json:"url" validate:"required,url,max=2048"`
	SigningKey string `json:"signing_key,omitempty"`
}

// UpdateGateWebhookRequest carries partial updates; nil fields are untouched.
type UpdateGateWebhookRequest struct {
	Enabled        *bool      `json:"enabled,omitempty"`
	DisabledReason *string    `json:"disabled_reason,omitempty"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
}
