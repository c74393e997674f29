package pipeline

import (
	"testing"
)

func TestBusFanOut(t *testing.T) {
	t.Parallel()
	b := NewBus(nil)
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Event{Type: EventSpeechStart})
	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		if ev.Type != EventSpeechStart {
			t.Errorf("event type = %q, want speech_start", ev.Type)
		}
	}

	cancel1()
	if _, ok := <-ch1; ok {
		t.Error("cancelled subscription channel not closed")
	}

	b.Publish(Event{Type: EventSpeechEnd})
	if ev := <-ch2; ev.Type != EventSpeechEnd {
		t.Errorf("event type = %q, want speech_end", ev.Type)
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := NewBus(nil)
	ch, cancel := b.Subscribe()
	defer cancel()

	// Overfill the subscriber queue; Publish must drop, not block.
	for i := 0; i < subscriberBuf*3; i++ {
		b.Publish(Event{Type: EventState, State: "idle"})
	}
	if len(ch) != subscriberBuf {
		t.Errorf("queued events = %d, want %d", len(ch), subscriberBuf)
	}
}

func TestBusCancelTwice(t *testing.T) {
	t.Parallel()
	b := NewBus(nil)
	_, cancel := b.Subscribe()
	cancel()
	cancel()
}
