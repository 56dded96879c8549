package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/gatewise/gatehub/internal/observability"
)

// DispatchInserter inserts dispatch jobs in batch (e.g. the River client).
type DispatchInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// GateNotifier implements eventPublisher by enqueueing one River job per
// (event, webhook). Delivery failures are the worker's problem; publishing
// never blocks or fails the gate decision.
type GateNotifier struct {
	repo        WebhooksRepository
	inserter    DispatchInserter
	maxAttempts int
	maxFanOut   int
	metrics     observability.GateMetrics
}

// NotifierParams holds the dependencies for NewGateNotifier.
type NotifierParams struct {
	Webhooks WebhooksRepository
	Inserter DispatchInserter
	// MaxAttempts is the per-job delivery attempt cap.
	MaxAttempts int
	// MaxFanOut bounds the InsertMany batch size.
	MaxFanOut int
	// Metrics may be nil when metrics are disabled.
	Metrics observability.GateMetrics
}

// NewGateNotifier creates a notifier that fans events out to every enabled endpoint.
func NewGateNotifier(p NotifierParams) *GateNotifier {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}

	if p.MaxFanOut <= 0 {
		p.MaxFanOut = 100
	}

	return &GateNotifier{
		repo:        p.Webhooks,
		inserter:    p.Inserter,
		maxAttempts: p.MaxAttempts,
		maxFanOut:   p.MaxFanOut,
		metrics:     p.Metrics,
	}
}

// PublishEvent lists enabled endpoints and enqueues one job per endpoint, in
// batches of maxFanOut to avoid oversized InsertMany calls.
func (n *GateNotifier) PublishEvent(ctx context.Context, event GateEvent) {
	webhooks, err := n.repo.ListEnabled(ctx)
	if err != nil {
		if n.metrics != nil {
			n.metrics.RecordWebhookEnqueueError(ctx, event.Type.String())
		}

		slog.Error("failed to list enabled webhooks",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)

		return
	}

	if len(webhooks) == 0 {
		return
	}

	const uniqueByPeriodHours = 24

	opts := &river.InsertOpts{
		MaxAttempts: n.maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: uniqueByPeriodHours * time.Hour,
		},
	}

	baseArgs := GateEventDispatchArgs{
		EventID:   event.ID,
		EventType: event.Type.String(),
		Timestamp: event.Timestamp,
		Data:      event.Data,
	}

	for start := 0; start < len(webhooks); start += n.maxFanOut {
		end := min(start+n.maxFanOut, len(webhooks))
		chunk := webhooks[start:end]

		params := make([]river.InsertManyParams, 0, len(chunk))
		for i := range chunk {
			args := baseArgs
			args.WebhookID = chunk[i].ID
			params = append(params, river.InsertManyParams{Args: args, InsertOpts: opts})
		}

		if _, err := n.inserter.InsertMany(ctx, params); err != nil {
			if n.metrics != nil {
				n.metrics.RecordWebhookEnqueueError(ctx, event.Type.String())
			}

			slog.Error("failed to enqueue gate event jobs",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)

			return
		}
	}

	if n.metrics != nil {
		n.metrics.RecordWebhookJobsEnqueued(ctx, event.Type.String(), len(webhooks))
	}
}

var _ eventPublisher = (*GateNotifier)(nil)
