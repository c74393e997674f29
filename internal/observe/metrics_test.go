package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"scrivo.stt.duration", m.STTDuration},
		{"scrivo.llm.duration", m.LLMDuration},
		{"scrivo.utterance.duration", m.UtteranceDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			md := findMetric(rm, tc.name)
			if md == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := md.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is %T, want Histogram[float64]", tc.name, md.Data)
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
			}
			if hist.DataPoints[0].Count != 2 {
				t.Errorf("count = %d, want 2", hist.DataPoints[0].Count)
			}
		})
	}
}

func TestCounterHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "stt", "ok")
	m.RecordProviderRequest(ctx, "openai", "stt", "error")
	m.RecordProviderRetry(ctx, "openai")
	m.RecordProviderError(ctx, "openai", "rate-limited")
	m.RecordVADEvent(ctx, "start")
	m.RecordVADEvent(ctx, "end")
	m.AddDroppedFrames(ctx, 7)
	m.AddDroppedFrames(ctx, 0) // no-op, must not add a data point

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"scrivo.provider.requests", 2},
		{"scrivo.provider.retries", 1},
		{"scrivo.provider.errors", 1},
		{"scrivo.vad.events", 2},
		{"scrivo.capture.dropped_frames", 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			md := findMetric(rm, tc.name)
			if md == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is %T, want Sum[int64]", tc.name, md.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			if total != tc.want {
				t.Errorf("total = %d, want %d", total, tc.want)
			}
		})
	}
}

func TestPipelineStateGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SetPipelineState(ctx, 1)
	m.SetPipelineState(ctx, 2)

	rm := collect(t, reader)
	md := findMetric(rm, "scrivo.pipeline.state")
	if md == nil {
		t.Fatal("metric scrivo.pipeline.state not found")
	}
	gauge, ok := md.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("metric is %T, want Gauge[int64]", md.Data)
	}
	if len(gauge.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(gauge.DataPoints))
	}
	if gauge.DataPoints[0].Value != 2 {
		t.Errorf("gauge value = %d, want 2 (last recorded)", gauge.DataPoints[0].Value)
	}
}
