package pipeline

import (
	"log/slog"
	"sync"
)

// EventType identifies a pipeline event on the wire.
type EventType string

const (
	// EventState is emitted on every state transition.
	EventState EventType = "state"

	// EventRecordingStarted is emitted when a recording session opens.
	EventRecordingStarted EventType = "recording_started"

	// EventSpeechStart is emitted when the voice activity detector declares
	// speech onset.
	EventSpeechStart EventType = "speech_start"

	// EventSpeechEnd is emitted when the voice activity detector declares
	// the end of a speech segment.
	EventSpeechEnd EventType = "speech_end"

	// EventTranscript carries the raw transcript of a completed utterance,
	// emitted as soon as transcription succeeds. When formatting is active
	// an [EventFormatted] follows.
	EventTranscript EventType = "transcript"

	// EventFormatted carries the LLM-formatted text of an utterance. Absent
	// when no LLM is configured or formatting failed; the raw transcript
	// from [EventTranscript] is then the final text.
	EventFormatted EventType = "formatted_text"

	// EventCancelled is emitted when a session is discarded by
	// cancel_recording.
	EventCancelled EventType = "cancelled"

	// EventReset is emitted when force_reset returns the pipeline to idle.
	EventReset EventType = "reset"

	// EventError carries a session failure.
	EventError EventType = "error"
)

// Event is a pipeline notification delivered to subscribers and forwarded
// verbatim over the WebSocket API.
type Event struct {
	Type EventType `json:"type"`

	// State is set on EventState.
	State string `json:"state,omitempty"`

	// Text is the utterance text, set on EventTranscript and EventFormatted.
	Text string `json:"text,omitempty"`

	// Provider names the backend that produced Text: the STT provider on
	// EventTranscript, the LLM provider on EventFormatted.
	Provider string `json:"provider,omitempty"`

	// Formatted reports whether Text went through LLM formatting. Set on
	// EventFormatted.
	Formatted bool `json:"formatted,omitempty"`

	// Error is the failure message, set on EventError.
	Error string `json:"error,omitempty"`

	// Recoverable reports whether the failure clears on the next start
	// command. Set on EventError.
	Recoverable bool `json:"recoverable,omitempty"`
}

const subscriberBuf = 16

// Bus fans pipeline events out to subscribers. Publishing never blocks; a
// subscriber that stops draining its channel loses events.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	log    *slog.Logger
}

// NewBus returns an empty event bus.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: make(map[int]chan Event), log: log}
}

// Subscribe registers a new subscriber and returns its event channel along
// with a cancel function. The channel is closed when cancel is called.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuf)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("pipeline: subscriber queue full, dropping event",
				"subscriber", id, "event", string(ev.Type))
		}
	}
}
