// Package observe provides observability for Vesper: OpenTelemetry metrics
// with a Prometheus exporter bridge, and an event-bus observer that turns
// pipeline events into metric updates.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vesper metrics.
const meterName = "github.com/vesper-voice/vesper"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks time spent in each pipeline stage. Use with
	// attribute: attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts transcribed user utterances.
	Utterances metric.Int64Counter

	// Replies counts generated assistant replies.
	Replies metric.Int64Counter

	// PipelineErrors counts stage failures. Use with attribute:
	//   attribute.String("stage", ...)
	PipelineErrors metric.Int64Counter

	// ModeSwitches counts interaction mode changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	ModeSwitches metric.Int64Counter

	// ActiveCaptures tracks open audio capture sessions (0 or 1 in the
	// single-device pipeline, but the instrument does not assume that).
	ActiveCaptures metric.Int64UpDownCounter

	// AudioLevel samples the capture RMS level as a fraction of full scale.
	AudioLevel metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline stage durations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// levelBuckets defines bucket boundaries for the audio level meter, fractions
// of full scale.
var levelBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.75, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("vesper.pipeline.stage.duration",
		metric.WithDescription("Time spent in each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("vesper.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("vesper.pipeline.utterances",
		metric.WithDescription("Total transcribed user utterances."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("vesper.pipeline.replies",
		metric.WithDescription("Total generated assistant replies."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("vesper.pipeline.errors",
		metric.WithDescription("Total pipeline stage failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.ModeSwitches, err = m.Int64Counter("vesper.mode.switches",
		metric.WithDescription("Total interaction mode changes."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptures, err = m.Int64UpDownCounter("vesper.audio.active_captures",
		metric.WithDescription("Number of open audio capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.AudioLevel, err = m.Float64Histogram("vesper.audio.level",
		metric.WithDescription("Capture RMS level as a fraction of full scale."),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
