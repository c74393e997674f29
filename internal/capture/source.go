// Package capture acquires microphone audio and hands it to the pipeline as
// fixed-size mono PCM16 frames.
//
// The package splits capture into two halves. A [Source] owns the OS audio
// device and calls back with frames from its own goroutine (or, for the
// PortAudio backend, a thread the audio library controls). A [Bridge] sits
// between the source callback and the pipeline consumer: it buffers frames in
// a bounded queue and drops the oldest frame when the consumer falls behind,
// so the capture callback never blocks.
package capture

import (
	"github.com/openscrivo/scrivo/pkg/audio"
)

// Source produces mono PCM16 audio frames.
//
// Implementations deliver frames by invoking the push callback passed to
// Start, and report an unrecoverable device failure by invoking fail once.
// After fail is invoked no further frames are pushed.
type Source interface {
	// Start begins capture. The push callback receives each frame; it must
	// return quickly and must not block. The fail callback receives at most
	// one terminal error.
	Start(push func(audio.Frame), fail func(error)) error

	// Stop ends capture and releases the device. Stop is idempotent.
	Stop() error

	// SampleRate returns the sample rate of the frames this source produces.
	SampleRate() int
}

// Device describes an audio input device available on the host.
type Device struct {
	// ID is the backend-specific device index.
	ID int `json:"id"`

	// Name is the human-readable device name.
	Name string `json:"name"`

	// Channels is the maximum number of input channels.
	Channels int `json:"channels"`

	// SampleRate is the device default sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// Default reports whether this is the system default input device.
	Default bool `json:"default"`
}
