// Package observe provides application-wide observability primitives for
// Scrivo: OpenTelemetry metrics, tracing helpers, and structured logging
// glue.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Scrivo metrics.
const meterName = "github.com/openscrivo/scrivo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency, including
	// retries.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM formatting latency.
	LLMDuration metric.Float64Histogram

	// UtteranceDuration tracks end-to-end latency from stop (or speech end)
	// to the final transcript event.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderRetries counts retry attempts by provider.
	ProviderRetries metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// DroppedFrames counts capture frames discarded under backpressure.
	DroppedFrames metric.Int64Counter

	// VADEvents counts speech start/end detections. Use with attribute:
	//   attribute.String("type", "start"|"end")
	VADEvents metric.Int64Counter

	// --- Gauges ---

	// PipelineState reports the current state as an integer code, set via
	// [Metrics.SetPipelineState].
	PipelineState metric.Int64Gauge

	// SessionSamples reports the number of samples currently buffered for
	// the active recording session.
	SessionSamples metric.Int64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// dictation latencies: sub-second local inference up to slow remote APIs.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("scrivo.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("scrivo.llm.duration",
		metric.WithDescription("Latency of LLM transcript formatting."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("scrivo.utterance.duration",
		metric.WithDescription("End-to-end latency from recording stop to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("scrivo.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRetries, err = m.Int64Counter("scrivo.provider.retries",
		metric.WithDescription("Total provider retry attempts by provider."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("scrivo.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("scrivo.capture.dropped_frames",
		metric.WithDescription("Capture frames discarded because the pipeline fell behind."),
	); err != nil {
		return nil, err
	}
	if met.VADEvents, err = m.Int64Counter("scrivo.vad.events",
		metric.WithDescription("Voice activity detections by type."),
	); err != nil {
		return nil, err
	}

	if met.PipelineState, err = m.Int64Gauge("scrivo.pipeline.state",
		metric.WithDescription("Current pipeline state code."),
	); err != nil {
		return nil, err
	}
	if met.SessionSamples, err = m.Int64Gauge("scrivo.session.samples",
		metric.WithDescription("Samples buffered for the active recording session."),
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

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRetry records a retry attempt for a provider.
func (m *Metrics) RecordProviderRetry(ctx context.Context, provider string) {
	m.ProviderRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordProviderError records a provider error by provider and error kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// AddDroppedFrames records capture frames discarded under backpressure.
func (m *Metrics) AddDroppedFrames(ctx context.Context, n int64) {
	if n > 0 {
		m.DroppedFrames.Add(ctx, n)
	}
}

// RecordVADEvent records a speech boundary detection of the given type.
func (m *Metrics) RecordVADEvent(ctx context.Context, eventType string) {
	m.VADEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// SetPipelineState records the current pipeline state code.
func (m *Metrics) SetPipelineState(ctx context.Context, state int64) {
	m.PipelineState.Record(ctx, state)
}

// SetSessionSamples records the current session buffer fill level.
func (m *Metrics) SetSessionSamples(ctx context.Context, samples int64) {
	m.SessionSamples.Record(ctx, samples)
}

// RecordSTTDuration records one transcription round-trip.
func (m *Metrics) RecordSTTDuration(ctx context.Context, provider string, d time.Duration) {
	m.STTDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordLLMDuration records one formatting round-trip.
func (m *Metrics) RecordLLMDuration(ctx context.Context, provider string, d time.Duration) {
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordUtteranceDuration records the wall time from stop command to final
// transcript.
func (m *Metrics) RecordUtteranceDuration(ctx context.Context, d time.Duration) {
	m.UtteranceDuration.Record(ctx, d.Seconds())
}
