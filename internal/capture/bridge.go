package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/openscrivo/scrivo/pkg/audio"
)

// DefaultQueueDepth is the default capacity of a bridge's frame queue. At
// 20 ms per frame it holds two seconds of audio.
const DefaultQueueDepth = 100

// Bridge decouples a [Source]'s capture callback from the pipeline consumer.
//
// Frames are queued in a bounded channel. When the queue is full the oldest
// frame is discarded to make room for the newest, and the drop is counted.
// Pushing therefore never blocks, which keeps the audio callback real-time
// safe regardless of how slowly the consumer drains.
type Bridge struct {
	src   Source
	log   *slog.Logger
	depth int

	out     chan audio.Frame
	errCh   chan error
	errOnce sync.Once
	dropped atomic.Uint64

	mu      sync.Mutex
	running bool
}

// BridgeOption configures a [Bridge] during construction.
type BridgeOption func(*Bridge)

// WithQueueDepth sets the frame queue capacity. Values below one are ignored.
func WithQueueDepth(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.depth = n
		}
	}
}

// WithLogger sets the logger used for drop reporting.
func WithLogger(log *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBridge creates a Bridge around the given source.
func NewBridge(src Source, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		src:   src,
		log:   slog.Default(),
		depth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.out = make(chan audio.Frame, b.depth)
	b.errCh = make(chan error, 1)
	return b
}

// Start opens the source and begins queueing frames.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("capture: bridge already started")
	}
	if err := b.src.Start(b.push, b.fail); err != nil {
		return fmt.Errorf("capture: starting source: %w", err)
	}
	b.running = true
	return nil
}

// Stop stops the source. Queued frames remain readable from [Bridge.Frames]
// until drained.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.running = false
	if err := b.src.Stop(); err != nil {
		return fmt.Errorf("capture: stopping source: %w", err)
	}
	return nil
}

// Frames returns the channel the pipeline drains.
func (b *Bridge) Frames() <-chan audio.Frame { return b.out }

// Errors returns a channel that yields at most one terminal capture error.
func (b *Bridge) Errors() <-chan error { return b.errCh }

// Dropped returns the total number of frames discarded because the queue was
// full.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// SampleRate returns the sample rate of the underlying source.
func (b *Bridge) SampleRate() int { return b.src.SampleRate() }

// push enqueues a frame without ever blocking. On a full queue the oldest
// frame is evicted first.
func (b *Bridge) push(frame audio.Frame) {
	select {
	case b.out <- frame:
		return
	default:
	}

	// Queue full: evict the oldest frame, then retry once. The retry can
	// still lose the race against a concurrent push, in which case the new
	// frame is dropped instead.
	select {
	case <-b.out:
		b.dropped.Add(1)
	default:
	}
	select {
	case b.out <- frame:
	default:
		b.dropped.Add(1)
	}

	if n := b.dropped.Load(); n%100 == 1 {
		b.log.Debug("capture queue full, dropping frames", "dropped_total", n)
	}
}

// fail records the source's terminal error. Only the first error is kept.
func (b *Bridge) fail(err error) {
	b.errOnce.Do(func() {
		b.errCh <- err
	})
}
