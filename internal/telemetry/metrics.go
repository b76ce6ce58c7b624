package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/switchboard"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Webhook metrics
	WebhooksReceivedTotal metric.Int64Counter
	WebhooksRejectedTotal metric.Int64Counter

	// Message ledger metrics
	InboundMessagesTotal   metric.Int64Counter
	InboundDuplicatesTotal metric.Int64Counter
	OutboundMessagesTotal  metric.Int64Counter

	// Carrier metrics
	DispatchFailuresTotal metric.Int64Counter
	DispatchDuration      metric.Float64Histogram

	// Race resolution metrics
	ContactsCreatedTotal    metric.Int64Counter
	ContactConflictsTotal   metric.Int64Counter
	TeamsOnboardedTotal     metric.Int64Counter
	OnboardingConflictTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for inbox spans.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.WebhooksReceivedTotal, _ = meter.Int64Counter(
		"switchboard.webhooks.received.total",
		metric.WithDescription("Total number of carrier webhooks received"),
		metric.WithUnit("{request}"),
	)

	m.WebhooksRejectedTotal, _ = meter.Int64Counter(
		"switchboard.webhooks.rejected.total",
		metric.WithDescription("Total number of carrier webhooks rejected by signature validation"),
		metric.WithUnit("{request}"),
	)

	m.InboundMessagesTotal, _ = meter.Int64Counter(
		"switchboard.messages.inbound.total",
		metric.WithDescription("Total number of inbound messages recorded"),
		metric.WithUnit("{message}"),
	)

	m.InboundDuplicatesTotal, _ = meter.Int64Counter(
		"switchboard.messages.inbound.duplicates.total",
		metric.WithDescription("Total number of redelivered inbound messages absorbed by deduplication"),
		metric.WithUnit("{message}"),
	)

	m.OutboundMessagesTotal, _ = meter.Int64Counter(
		"switchboard.messages.outbound.total",
		metric.WithDescription("Total number of outbound messages sent and recorded"),
		metric.WithUnit("{message}"),
	)

	m.DispatchFailuresTotal, _ = meter.Int64Counter(
		"switchboard.carrier.dispatch.failures.total",
		metric.WithDescription("Total number of carrier sends that failed"),
		metric.WithUnit("{error}"),
	)

	m.DispatchDuration, _ = meter.Float64Histogram(
		"switchboard.carrier.dispatch.duration",
		metric.WithDescription("Duration of carrier send calls"),
		metric.WithUnit("ms"),
	)

	m.ContactsCreatedTotal, _ = meter.Int64Counter(
		"switchboard.contacts.created.total",
		metric.WithDescription("Total number of contacts created"),
		metric.WithUnit("{contact}"),
	)

	m.ContactConflictsTotal, _ = meter.Int64Counter(
		"switchboard.contacts.conflicts.total",
		metric.WithDescription("Total number of concurrent contact creations resolved by re-reading"),
		metric.WithUnit("{conflict}"),
	)

	m.TeamsOnboardedTotal, _ = meter.Int64Counter(
		"switchboard.teams.onboarded.total",
		metric.WithDescription("Total number of teams created for first-seen users"),
		metric.WithUnit("{team}"),
	)

	m.OnboardingConflictTotal, _ = meter.Int64Counter(
		"switchboard.teams.onboarding_conflicts.total",
		metric.WithDescription("Total number of concurrent onboardings resolved by re-reading"),
		metric.WithUnit("{conflict}"),
	)

	return m
}
