package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vesper-voice/vesper/pkg/event"
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

// counterValue sums an int64 counter's data points. An instrument with no
// recordings yet is absent from the collection and counts as zero.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "elevenlabs", "tts", "error")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "vesper.provider.requests"); got != 3 {
		t.Errorf("expected 3 provider requests, got %d", got)
	}

	req := findMetric(rm, "vesper.provider.requests")
	sum := req.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("expected 2 attribute sets, got %d", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		if p, ok := dp.Attributes.Value(attribute.Key("provider")); ok && p.AsString() == "whisper" {
			if dp.Value != 2 {
				t.Errorf("expected 2 whisper requests, got %d", dp.Value)
			}
		}
	}
}

// TestObserver_StageDurations checks that entered/left event pairs produce a
// stage duration sample.
func TestObserver_StageDurations(t *testing.T) {
	m, reader := newTestMetrics(t)
	bus := event.NewBus()
	defer bus.Close()

	obs := NewObserver(m)
	if err := obs.Attach(bus); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	bus.Publish(event.TopicStageEntered, event.StageChange{Stage: "transcribing", At: start})
	bus.Publish(event.TopicStageLeft, event.StageChange{Stage: "transcribing", At: start.Add(250 * time.Millisecond)})
	bus.Flush()

	rm := collect(t, reader)
	dur := findMetric(rm, "vesper.pipeline.stage.duration")
	if dur == nil {
		t.Fatal("stage duration metric not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("stage duration is not a float64 histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("expected 1 sample, got %d", dp.Count)
	}
	if dp.Sum < 0.249 || dp.Sum > 0.251 {
		t.Errorf("expected ~0.25s recorded, got %f", dp.Sum)
	}
	if s, ok := dp.Attributes.Value(attribute.Key("stage")); !ok || s.AsString() != "transcribing" {
		t.Errorf("expected stage attribute transcribing, got %v", dp.Attributes)
	}
}

// TestObserver_CountsEvents checks utterance, reply, error, and mode-switch
// counters.
func TestObserver_CountsEvents(t *testing.T) {
	m, reader := newTestMetrics(t)
	bus := event.NewBus()
	defer bus.Close()

	obs := NewObserver(m)
	if err := obs.Attach(bus); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bus.Publish(event.TopicTranscript, event.Transcript{Text: "hello"})
	bus.Publish(event.TopicReply, event.Reply{Text: "hi"})
	bus.Publish(event.TopicReply, event.Reply{Text: "again"})
	bus.Publish(event.TopicPipelineError, event.PipelineError{Stage: "synthesizing"})
	bus.Publish(event.TopicModeSwitch, event.ModeSwitch{From: "regular", To: "pipeline"})
	bus.Flush()

	rm := collect(t, reader)
	if got := counterValue(t, rm, "vesper.pipeline.utterances"); got != 1 {
		t.Errorf("expected 1 utterance, got %d", got)
	}
	if got := counterValue(t, rm, "vesper.pipeline.replies"); got != 2 {
		t.Errorf("expected 2 replies, got %d", got)
	}
	if got := counterValue(t, rm, "vesper.pipeline.errors"); got != 1 {
		t.Errorf("expected 1 pipeline error, got %d", got)
	}
	if got := counterValue(t, rm, "vesper.mode.switches"); got != 1 {
		t.Errorf("expected 1 mode switch, got %d", got)
	}
}

// TestObserver_DetachStopsRecording checks that a detached observer records
// nothing further.
func TestObserver_DetachStopsRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	bus := event.NewBus()
	defer bus.Close()

	obs := NewObserver(m)
	if err := obs.Attach(bus); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs.Detach(bus)

	bus.Publish(event.TopicReply, event.Reply{Text: "unseen"})
	bus.Flush()

	rm := collect(t, reader)
	if got := counterValue(t, rm, "vesper.pipeline.replies"); got != 0 {
		t.Errorf("expected no replies recorded, got %d", got)
	}
}
