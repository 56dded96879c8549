// Package workers provides River job workers for outbound gate notifications.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/observability"
	"github.com/gatewise/gatehub/internal/service"
)

// GateEventDispatchWorker delivers one gate event to one webhook endpoint.
type GateEventDispatchWorker struct {
	river.WorkerDefaults[service.GateEventDispatchArgs]

	repo    dispatchRepo
	sender  service.WebhookSender
	metrics observability.GateMetrics
}

// dispatchRepo is the minimal repo interface needed by the worker.
type dispatchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.GateWebhook, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateGateWebhookRequest) (*models.GateWebhook, error)
}

// NewGateEventDispatchWorker creates a worker that uses the given repo and
// sender. metrics may be nil when metrics are disabled.
func NewGateEventDispatchWorker(
	repo dispatchRepo, sender service.WebhookSender, metrics observability.GateMetrics,
) *GateEventDispatchWorker {
	return &GateEventDispatchWorker{repo: repo, sender: sender, metrics: metrics}
}

// DeliveryTimeout is the max duration for a single delivery (align with the
// sender's HTTP client timeout).
const DeliveryTimeout = 25 * time.Second

// Timeout limits how long a single delivery can run.
func (w *GateEventDispatchWorker) Timeout(*river.Job[service.GateEventDispatchArgs]) time.Duration {
	return DeliveryTimeout
}

// Work loads the endpoint and sends the event once.
func (w *GateEventDispatchWorker) Work(ctx context.Context, job *river.Job[service.GateEventDispatchArgs]) error {
	args := job.Args
	start := time.Now()

	webhook, err := w.repo.GetByID(ctx, args.WebhookID)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordWebhookDelivery(ctx, args.EventType, "failed_final", time.Since(start))
		}

		slog.Error("gate event dispatch: get webhook failed",
			"event_id", args.EventID,
			"webhook_id", args.WebhookID,
			"error", err,
		)

		return nil // no retry if webhook not found
	}

	if !webhook.Enabled {
		slog.Debug("gate event dispatch: webhook disabled, skipping",
			"event_id", args.EventID,
			"webhook_id", args.WebhookID,
		)

		return nil
	}

	err = w.sender.Send(ctx, webhook, &args)
	if err == nil {
		if w.metrics != nil {
			w.metrics.RecordWebhookDelivery(ctx, args.EventType, "success", time.Since(start))
		}

		return nil
	}

	isLastAttempt := job.Attempt >= job.MaxAttempts
	if isLastAttempt {
		if w.metrics != nil {
			w.metrics.RecordWebhookDisabled(ctx, "max_attempts")
			w.metrics.RecordWebhookDelivery(ctx, args.EventType, "failed_final", time.Since(start))
		}

		enabled := false
		reason := err.Error()
		now := time.Now()

		_, updateErr := w.repo.Update(ctx, webhook.ID, &models.UpdateGateWebhookRequest{
			Enabled:        &enabled,
			DisabledReason: &reason,
			DisabledAt:     &now,
		})
		if updateErr != nil {
			slog.Error("gate event dispatch: failed to disable webhook after max attempts",
				"webhook_id", webhook.ID,
				"event_id", args.EventID,
				"error", updateErr,
			)
		}

		slog.Error("webhook disabled after max delivery attempts",
			"webhook_id", webhook.ID,
			"event_id", args.EventID,
			"error", err,
		)

		return fmt.Errorf("webhook send (final attempt): %w", err)
	}

	if w.metrics != nil {
		w.metrics.RecordWebhookDelivery(ctx, args.EventType, "retry", time.Since(start))
	}

	slog.Warn("webhook delivery failed, will retry",
		"event_id", args.EventID,
		"webhook_id", webhook.ID,
		"url", webhook.URL,
		"event_type", args.EventType,
		"error", err,
	)

	return fmt.Errorf("webhook send: %w", err)
}
