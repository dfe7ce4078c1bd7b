package event_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/vesper-voice/vesper/pkg/event"
)

func TestBus_DeliversInPublishOrder(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	err := bus.Subscribe(event.TopicTranscript, "recorder", func(ev event.Event) {
		mu.Lock()
		got = append(got, ev.Payload.(event.Transcript).Text)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	want := []string{"one", "two", "three", "four"}
	for _, text := range want {
		bus.Publish(event.TopicTranscript, event.Transcript{Text: text})
	}
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("delivered %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_DuplicateSubscriptionRejected(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	var first, second int
	if err := bus.Subscribe(event.TopicReply, "ui", func(event.Event) { first++ }); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	err := bus.Subscribe(event.TopicReply, "ui", func(event.Event) { second++ })
	if !errors.Is(err, event.ErrDuplicateSubscription) {
		t.Fatalf("duplicate Subscribe: want ErrDuplicateSubscription, got %v", err)
	}

	bus.Publish(event.TopicReply, event.Reply{Text: "hello"})
	bus.Flush()

	if first != 1 {
		t.Errorf("original handler deliveries: want 1, got %d", first)
	}
	if second != 0 {
		t.Errorf("rejected handler deliveries: want 0, got %d", second)
	}
}

func TestBus_SameNameOnDifferentTopics(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	if err := bus.Subscribe(event.TopicTranscript, "ui", func(event.Event) {}); err != nil {
		t.Fatalf("Subscribe transcript: %v", err)
	}
	if err := bus.Subscribe(event.TopicReply, "ui", func(event.Event) {}); err != nil {
		t.Errorf("same name on a different topic must be allowed: %v", err)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	var count int
	if err := bus.Subscribe(event.TopicModeSwitch, "watcher", func(event.Event) { count++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Publish(event.TopicModeSwitch, event.ModeSwitch{To: "pipeline"})
	bus.Flush()
	bus.Unsubscribe(event.TopicModeSwitch, "watcher")
	bus.Publish(event.TopicModeSwitch, event.ModeSwitch{From: "pipeline"})
	bus.Flush()

	if count != 1 {
		t.Errorf("deliveries after unsubscribe: want 1, got %d", count)
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	var count int
	if err := bus.Subscribe(event.TopicTranscript, "recorder", func(event.Event) { count++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Publish(event.TopicReply, event.Reply{Text: "unrelated"})
	bus.Publish(event.TopicTranscript, event.Transcript{Text: "mine"})
	bus.Flush()

	if count != 1 {
		t.Errorf("deliveries: want 1, got %d", count)
	}
}

func TestBus_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	defer bus.Close()

	var survived int
	if err := bus.Subscribe(event.TopicReply, "bad", func(event.Event) { panic("boom") }); err != nil {
		t.Fatalf("Subscribe bad: %v", err)
	}
	if err := bus.Subscribe(event.TopicReply, "good", func(event.Event) { survived++ }); err != nil {
		t.Fatalf("Subscribe good: %v", err)
	}

	bus.Publish(event.TopicReply, event.Reply{Text: "a"})
	bus.Publish(event.TopicReply, event.Reply{Text: "b"})
	bus.Flush()

	if survived != 2 {
		t.Errorf("deliveries to healthy handler: want 2, got %d", survived)
	}
}

func TestBus_CloseDrainsQueue(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()

	var count int
	if err := bus.Subscribe(event.TopicTranscript, "recorder", func(event.Event) { count++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for range 10 {
		bus.Publish(event.TopicTranscript, event.Transcript{Text: "x"})
	}
	bus.Close()

	if count != 10 {
		t.Errorf("deliveries before close returned: want 10, got %d", count)
	}
}
