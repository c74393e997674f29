package audio

import (
	"sync"
	"time"
)

// SessionBuffer accumulates the mono PCM16 samples of one recording session.
//
// The buffer enforces a hard sample cap: appends beyond maxSamples drop the
// oldest samples so the buffer always holds the most recent window. This
// bounds memory for arbitrarily long sessions with an explicit, testable
// policy instead of unbounded growth.
//
// All methods are safe for concurrent use.
type SessionBuffer struct {
	mu         sync.Mutex
	samples    []int16
	sampleRate int
	maxSamples int
}

// NewSessionBuffer creates a buffer for audio at sampleRate Hz holding at
// most maxSamples samples. A maxSamples of 0 or less disables the cap.
func NewSessionBuffer(sampleRate, maxSamples int) *SessionBuffer {
	capHint := maxSamples
	if capHint <= 0 || capHint > sampleRate*30 {
		capHint = sampleRate * 30
	}
	return &SessionBuffer{
		samples:    make([]int16, 0, capHint),
		sampleRate: sampleRate,
		maxSamples: maxSamples,
	}
}

// Append extends the buffer with new samples, then drops from the front
// exactly enough to satisfy the cap. It never fails; the cap invariant holds
// after every call.
func (b *SessionBuffer) Append(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, samples...)

	if b.maxSamples > 0 && len(b.samples) > b.maxSamples {
		keep := b.samples[len(b.samples)-b.maxSamples:]
		// Copy to a fresh slice so the dropped prefix can be garbage
		// collected instead of pinning the old backing array.
		fresh := make([]int16, b.maxSamples, cap(b.samples))
		copy(fresh, keep)
		b.samples = fresh
	}
}

// AppendBytes extends the buffer with little-endian PCM16 bytes.
func (b *SessionBuffer) AppendBytes(pcm []byte) {
	b.Append(BytesToInt16(pcm))
}

// EncodeWAV encodes the current contents as a WAV container. It does not
// mutate the buffer; calling it twice on an unmodified buffer yields
// byte-identical output.
func (b *SessionBuffer) EncodeWAV() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return EncodeWAV(b.samples, b.sampleRate)
}

// Samples returns a copy of the current contents.
func (b *SessionBuffer) Samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of buffered samples.
func (b *SessionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the play time of the buffered audio.
func (b *SessionBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// SampleRate returns the buffer's sample rate in Hz.
func (b *SessionBuffer) SampleRate() int {
	return b.sampleRate
}

// Clear resets the buffer to empty. Used after finalize and on cancel.
func (b *SessionBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}
