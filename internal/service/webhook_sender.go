package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/gatewise/gatehub/internal/models"
)

// WebhookSender sends a single gate event to an endpoint
// (Standard Webhooks: signing, headers, 410 handling).
type WebhookSender interface {
	Send(ctx context.Context, webhook *models.GateWebhook, args *GateEventDispatchArgs) error
}

// webhookPayload is the JSON body delivered to endpoints.
type webhookPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// SigningWebhookSender implements WebhookSender with Standard Webhooks conformance.
type SigningWebhookSender struct {
	repo       WebhooksRepository
	httpClient *http.Client
}

// NewSigningWebhookSender creates a sender that disables endpoints through
// the given repo. The HTTP client uses a 15s timeout and does not follow
// redirects.
func NewSigningWebhookSender(repo WebhooksRepository) *SigningWebhookSender {
	client := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &SigningWebhookSender{repo: repo, httpClient: client}
}

// Send signs and POSTs the event to the endpoint URL. On 410 Gone, disables
// the endpoint and returns an error.
func (s *SigningWebhookSender) Send(ctx context.Context, webhook *models.GateWebhook, args *GateEventDispatchArgs) error {
	payload := webhookPayload{
		ID:        args.EventID.String(),
		Type:      args.EventType,
		Timestamp: args.Timestamp,
		Data:      args.Data,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	wh, err := standardwebhooks.NewWebhook(webhook.SigningKey)
	if err != nil {
		return fmt.Errorf("create webhook signer: %w", err)
	}

	timestamp := time.Now()

	signature, err := wh.Sign(payload.ID, timestamp, payloadJSON)
	if err != nil {
		return fmt.Errorf("sign webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payloadJSON))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(standardwebhooks.HeaderWebhookID, payload.ID)
	req.Header.Set(standardwebhooks.HeaderWebhookSignature, signature)
	req.Header.Set(standardwebhooks.HeaderWebhookTimestamp, strconv.FormatInt(timestamp.Unix(), 10))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close webhook response body", "webhook_id", webhook.ID, "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusGone {
		enabled := false
		reason := "Endpoint returned 410 Gone"
		now := time.Now()

		_, updateErr := s.repo.Update(ctx, webhook.ID, &models.UpdateGateWebhookRequest{
			Enabled:        &enabled,
			DisabledReason: &reason,
			DisabledAt:     &now,
		})
		if updateErr != nil {
			slog.Error("failed to disable webhook after 410 Gone",
				"webhook_id", webhook.ID,
				"url", webhook.URL,
				"error", updateErr,
			)
		} else {
			slog.Info("webhook disabled after 410 Gone (endpoint no longer accepts delivery)",
				"webhook_id", webhook.ID,
				"url", webhook.URL,
			)
		}

		return fmt.Errorf("webhook returned 410 Gone (endpoint disabled): %s", webhook.URL)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}
