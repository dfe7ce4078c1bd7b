package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vesper-voice/vesper/pkg/event"
)

// Observer turns pipeline events into metric updates. It subscribes to the
// event bus independently of the interaction modes, so metrics flow no matter
// which mode is active.
type Observer struct {
	metrics *Metrics

	mu      sync.Mutex
	stageAt map[string]time.Time
}

// observer subscription names on the bus.
const (
	subStageEntered = "observe.stage.entered"
	subStageLeft    = "observe.stage.left"
	subError        = "observe.error"
	subTranscript   = "observe.transcript"
	subReply        = "observe.reply"
	subModeSwitch   = "observe.mode"
	subAudioLevel   = "observe.level"
)

// NewObserver creates an Observer recording into m.
func NewObserver(m *Metrics) *Observer {
	return &Observer{
		metrics: m,
		stageAt: make(map[string]time.Time),
	}
}

// Attach subscribes the observer's handlers on bus.
func (o *Observer) Attach(bus *event.Bus) error {
	subs := []struct {
		topic   event.Topic
		name    string
		handler event.Handler
	}{
		{event.TopicStageEntered, subStageEntered, o.onStageEntered},
		{event.TopicStageLeft, subStageLeft, o.onStageLeft},
		{event.TopicPipelineError, subError, o.onError},
		{event.TopicTranscript, subTranscript, o.onTranscript},
		{event.TopicReply, subReply, o.onReply},
		{event.TopicModeSwitch, subModeSwitch, o.onModeSwitch},
		{event.TopicAudioLevel, subAudioLevel, o.onAudioLevel},
	}
	for i, s := range subs {
		if err := bus.Subscribe(s.topic, s.name, s.handler); err != nil {
			for _, prev := range subs[:i] {
				bus.Unsubscribe(prev.topic, prev.name)
			}
			return err
		}
	}
	return nil
}

// Detach removes the observer's subscriptions from bus.
func (o *Observer) Detach(bus *event.Bus) {
	bus.Unsubscribe(event.TopicStageEntered, subStageEntered)
	bus.Unsubscribe(event.TopicStageLeft, subStageLeft)
	bus.Unsubscribe(event.TopicPipelineError, subError)
	bus.Unsubscribe(event.TopicTranscript, subTranscript)
	bus.Unsubscribe(event.TopicReply, subReply)
	bus.Unsubscribe(event.TopicModeSwitch, subModeSwitch)
	bus.Unsubscribe(event.TopicAudioLevel, subAudioLevel)
}

func (o *Observer) onStageEntered(ev event.Event) {
	sc, ok := ev.Payload.(event.StageChange)
	if !ok {
		return
	}
	o.mu.Lock()
	o.stageAt[sc.Stage] = sc.At
	o.mu.Unlock()

	if sc.Stage == "listening" {
		o.metrics.ActiveCaptures.Add(context.Background(), 1)
	}
}

func (o *Observer) onStageLeft(ev event.Event) {
	sc, ok := ev.Payload.(event.StageChange)
	if !ok {
		return
	}
	o.mu.Lock()
	start, seen := o.stageAt[sc.Stage]
	delete(o.stageAt, sc.Stage)
	o.mu.Unlock()
	if !seen {
		return
	}

	o.metrics.StageDuration.Record(context.Background(), sc.At.Sub(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", sc.Stage)))
	if sc.Stage == "listening" {
		o.metrics.ActiveCaptures.Add(context.Background(), -1)
	}
}

func (o *Observer) onError(ev event.Event) {
	pe, ok := ev.Payload.(event.PipelineError)
	if !ok {
		return
	}
	o.metrics.PipelineErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stage", pe.Stage)))
}

func (o *Observer) onTranscript(ev event.Event) {
	o.metrics.Utterances.Add(context.Background(), 1)
}

func (o *Observer) onReply(ev event.Event) {
	o.metrics.Replies.Add(context.Background(), 1)
}

func (o *Observer) onModeSwitch(ev event.Event) {
	ms, ok := ev.Payload.(event.ModeSwitch)
	if !ok {
		return
	}
	o.metrics.ModeSwitches.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("from", ms.From),
			attribute.String("to", ms.To),
		))
}

func (o *Observer) onAudioLevel(ev event.Event) {
	al, ok := ev.Payload.(event.AudioLevel)
	if !ok {
		return
	}
	o.metrics.AudioLevel.Record(context.Background(), al.RMS)
}
