package vad

import "github.com/openscrivo/scrivo/pkg/audio"

// PreRollRing is a fixed-capacity FIFO ring of the most recent audio frames.
// It is populated on every frame regardless of speech state so that the
// moments before speech onset are always available; inserting into a full
// ring evicts the oldest frame.
//
// PreRollRing is owned by a single Detector and is not safe for concurrent
// use on its own.
type PreRollRing struct {
	frames []audio.Frame
	head   int
	size   int
}

// NewPreRollRing creates a ring holding at most capacity frames.
func NewPreRollRing(capacity int) *PreRollRing {
	if capacity < 1 {
		capacity = 1
	}
	return &PreRollRing{frames: make([]audio.Frame, capacity)}
}

// Push inserts a frame, evicting the oldest when the ring is full.
func (r *PreRollRing) Push(f audio.Frame) {
	r.frames[(r.head+r.size)%len(r.frames)] = f
	if r.size < len(r.frames) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.frames)
}

// Snapshot returns the buffered frames in oldest-to-newest order. The
// returned slice is a copy; later pushes do not mutate it.
func (r *PreRollRing) Snapshot() []audio.Frame {
	out := make([]audio.Frame, r.size)
	for i := range r.size {
		out[i] = r.frames[(r.head+i)%len(r.frames)]
	}
	return out
}

// Len returns the number of buffered frames.
func (r *PreRollRing) Len() int { return r.size }

// Cap returns the ring capacity in frames.
func (r *PreRollRing) Cap() int { return len(r.frames) }

// Clear empties the ring.
func (r *PreRollRing) Clear() {
	r.head = 0
	r.size = 0
}
