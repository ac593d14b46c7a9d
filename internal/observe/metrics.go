// Package observe provides application-wide observability primitives for
// UniVoice: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all UniVoice metrics.
const meterName = "github.com/univoice/core"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks the latency between a frame being sent and its
	// corresponding ASR Segment being published (C2).
	ASRDuration metric.Float64Histogram

	// TranslationDuration tracks translation job latency. Use with
	// attribute.String("tier", ...) to distinguish realtime/sentence/paragraph.
	TranslationDuration metric.Float64Histogram

	// ParagraphDuration tracks the wall-clock span of a completed paragraph,
	// from its first contributing segment to its flush (C8).
	ParagraphDuration metric.Float64Histogram

	// --- Counters ---

	// EventsPublished counts Unified Events published on the bus, by kind
	// (C12).
	EventsPublished metric.Int64Counter

	// EventsDropped counts Unified Events dropped by a subscriber's bounded
	// queue under backpressure (C12).
	EventsDropped metric.Int64Counter

	// AudioFramesDropped is the counter for audio frames dropped under
	// backpressure (C1). No component in this module records to it; the
	// framer drops frames without touching it.
	AudioFramesDropped metric.Int64Counter

	// TranslationsDropped counts translation jobs dropped or superseded
	// before completion, by tier (C4/C9).
	TranslationsDropped metric.Int64Counter

	// SlowFirstPaint counts realtime translations whose first token exceeded
	// the soft 1000ms deadline (C4).
	SlowFirstPaint metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live captioning sessions (C11).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming-captioning latencies (most are sub-second).
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("univoice.asr.duration",
		metric.WithDescription("Latency from frame ingress to ASR Segment publication."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("univoice.translation.duration",
		metric.WithDescription("Translation job latency by tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ParagraphDuration, err = m.Float64Histogram("univoice.paragraph.duration",
		metric.WithDescription("Wall-clock span of a completed paragraph."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.EventsPublished, err = m.Int64Counter("univoice.events.published",
		metric.WithDescription("Total Unified Events published, by kind."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("univoice.events.dropped",
		metric.WithDescription("Total Unified Events dropped by a subscriber under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("univoice.audio.dropped",
		metric.WithDescription("Total audio frames dropped under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.TranslationsDropped, err = m.Int64Counter("univoice.translation.dropped",
		metric.WithDescription("Total translation jobs dropped or superseded, by tier."),
	); err != nil {
		return nil, err
	}
	if met.SlowFirstPaint, err = m.Int64Counter("univoice.slow_first_paint",
		metric.WithDescription("Total realtime translations whose first token exceeded the soft deadline."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("univoice.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("univoice.active_session",
		metric.WithDescription("Number of live captioning sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("univoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranslation records a translation duration observation tagged by
// tier ("realtime", "sentence", "paragraph").
func (m *Metrics) RecordTranslation(ctx context.Context, tier string, seconds float64) {
	m.TranslationDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordTranslationDropped is a convenience method that records a dropped
// translation job counter increment, tagged by tier.
func (m *Metrics) RecordTranslationDropped(ctx context.Context, tier string) {
	m.TranslationsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordEventPublished is a convenience method that records an event
// publication counter increment, tagged by kind.
func (m *Metrics) RecordEventPublished(ctx context.Context, kind string) {
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEventDropped is a convenience method that records an event-drop
// counter increment, tagged by kind.
func (m *Metrics) RecordEventDropped(ctx context.Context, kind string) {
	m.EventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
