package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/gatewise/gatehub/internal/observability"
	defaultServiceName = "gatehub"
	cardinalityLimit   = 2000
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for
// request and delivery duration histograms.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5}

// distanceHistogramBoundaries cover the useful L2 range around the match
// threshold; distances past 2.0 are all equally "not a match".
var distanceHistogramBoundaries = []float64{0.2, 0.4, 0.6, 0.7, 0.8, 0.9, 1.0, 1.2, 1.5, 2.0}

// GateMetrics is the single metrics interface for the gate engine
// (HTTP, decisions, plate reads, webhook delivery).
type GateMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordDecision(ctx context.Context, outcome string)
	RecordMatchDistance(ctx context.Context, distance float64)
	RecordPlateScan(ctx context.Context, outcome string)
	RecordWebhookJobsEnqueued(ctx context.Context, eventType string, count int)
	RecordWebhookEnqueueError(ctx context.Context, eventType string)
	RecordWebhookDelivery(ctx context.Context, eventType, outcome string, duration time.Duration)
	RecordWebhookDisabled(ctx context.Context, reason string)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: gatehub).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and
// returns the provider, an HTTP handler for /metrics, and GateMetrics bound to
// the provider's Meter. Caller must call provider.Shutdown on exit. When
// metrics are disabled, pass nil for metrics at call sites.
func NewMeterProvider(_ context.Context, cfg MeterProviderConfig) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics GateMetrics, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	// Use a single resource to avoid Schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "http.server.duration"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "webhook_delivery_duration_seconds"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "match_distance"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: distanceHistogramBoundaries}},
			),
		),
	)
	provider = mp
	meter := mp.Meter(meterScope)

	metrics, err = newMetricsFromMeter(meter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return provider, metricsHandler, metrics, nil
}

func newMetricsFromMeter(meter metric.Meter) (*gateMetricsImpl, error) {
	requestCount, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("request_count: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.server.duration: %w", err)
	}

	decisions, err := meter.Int64Counter(
		"gate_decisions_total",
		metric.WithDescription("Access decisions per outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("gate_decisions_total: %w", err)
	}

	matchDistance, err := meter.Float64Histogram(
		"match_distance",
		metric.WithDescription("L2 distance of the best match per resolution"),
	)
	if err != nil {
		return nil, fmt.Errorf("match_distance: %w", err)
	}

	plateScans, err := meter.Int64Counter(
		"plate_scans_total",
		metric.WithDescription("Plate recognitions per outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("plate_scans_total: %w", err)
	}

	webhookJobsEnqueued, err := meter.Int64Counter(
		"webhook_jobs_enqueued_total",
		metric.WithDescription("Webhook dispatch jobs enqueued per event type"),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook_jobs_enqueued_total: %w", err)
	}

	webhookEnqueueErrors, err := meter.Int64Counter(
		"webhook_jobs_enqueue_errors_total",
		metric.WithDescription("Webhook job enqueue failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook_jobs_enqueue_errors_total: %w", err)
	}

	webhookDeliveries, err := meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Webhook delivery outcomes"),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook_deliveries_total: %w", err)
	}

	webhookDeliveryDuration, err := meter.Float64Histogram(
		"webhook_delivery_duration_seconds",
		metric.WithDescription("Webhook delivery duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook_delivery_duration_seconds: %w", err)
	}

	webhookDisabled, err := meter.Int64Counter(
		"webhook_disabled_total",
		metric.WithDescription("Webhooks disabled by reason (410_gone, max_retries)"),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook_disabled_total: %w", err)
	}

	return &gateMetricsImpl{
		requestCount:         requestCount,
		requestDuration:      requestDuration,
		decisions:            decisions,
		matchDistance:        matchDistance,
		plateScans:           plateScans,
		webhookJobsEnqueued:  webhookJobsEnqueued,
		webhookEnqueueErrors: webhookEnqueueErrors,
		webhookDeliveries:    webhookDeliveries,
		webhookDeliveryDur:   webhookDeliveryDuration,
		webhookDisabled:      webhookDisabled,
	}, nil
}

type gateMetricsImpl struct {
	requestCount         metric.Int64Counter
	requestDuration      metric.Float64Histogram
	decisions            metric.Int64Counter
	matchDistance        metric.Float64Histogram
	plateScans           metric.Int64Counter
	webhookJobsEnqueued  metric.Int64Counter
	webhookEnqueueErrors metric.Int64Counter
	webhookDeliveries    metric.Int64Counter
	webhookDeliveryDur   metric.Float64Histogram
	webhookDisabled      metric.Int64Counter
}

func (m *gateMetricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *gateMetricsImpl) RecordDecision(ctx context.Context, outcome string) {
	outcome = normalizeDecisionOutcome(outcome)
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *gateMetricsImpl) RecordMatchDistance(ctx context.Context, distance float64) {
	m.matchDistance.Record(ctx, distance)
}

func (m *gateMetricsImpl) RecordPlateScan(ctx context.Context, outcome string) {
	outcome = normalizePlateOutcome(outcome)
	m.plateScans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *gateMetricsImpl) RecordWebhookJobsEnqueued(ctx context.Context, eventType string, count int) {
	eventType = normalizeEventType(eventType)
	m.webhookJobsEnqueued.Add(ctx, int64(count), metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *gateMetricsImpl) RecordWebhookEnqueueError(ctx context.Context, eventType string) {
	eventType = normalizeEventType(eventType)
	m.webhookEnqueueErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *gateMetricsImpl) RecordWebhookDelivery(ctx context.Context, eventType, outcome string, duration time.Duration) {
	eventType = normalizeEventType(eventType)
	outcome = normalizeDeliveryOutcome(outcome)
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
	m.webhookDeliveryDur.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (m *gateMetricsImpl) RecordWebhookDisabled(ctx context.Context, reason string) {
	reason = normalizeDisabledReason(reason)
	m.webhookDisabled.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// normalizeDecisionOutcome maps decision outcomes to a bounded set for cardinality control.
func normalizeDecisionOutcome(s string) string {
	switch s {
	case "unknown", "no_active_invitation", "pending", "allowed":
		return s
	default:
		return "other"
	}
}

func normalizePlateOutcome(s string) string {
	switch s {
	case "matched", "unregistered", "no_plate", "error":
		return s
	default:
		return "other"
	}
}

// normalizeEventType maps event types to a bounded set.
func normalizeEventType(s string) string {
	switch s {
	case "gate.entry_allowed", "gate.entry_denied", "identity.enrolled", "plate.recognized":
		return s
	default:
		return "unknown"
	}
}

func normalizeDeliveryOutcome(s string) string {
	switch s {
	case "success", "retry", "failed_final":
		return s
	default:
		return "unknown"
	}
}

func normalizeDisabledReason(s string) string {
	switch s {
	case "410_gone", "max_attempts":
		return s
	default:
		return "other"
	}
}
