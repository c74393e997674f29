// Package audio provides the audio primitives shared across the Scrivo
// pipeline: frames, formats, sample conversion, resampling, WAV encoding,
// and the bounded session buffer.
package audio

import "time"

// Encoding identifies the sample encoding of an audio stream.
type Encoding int

const (
	// PCM16 is signed 16-bit little-endian PCM, the internal pipeline format.
	PCM16 Encoding = iota

	// Float32 is 32-bit IEEE float PCM in [-1.0, 1.0], as delivered by many
	// capture devices. Converted to PCM16 at the capture edge.
	Float32
)

// String returns the human-readable name of the encoding.
func (e Encoding) String() string {
	switch e {
	case PCM16:
		return "pcm16"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// Format describes the sample rate, channel count, and encoding of an audio
// stream. The pipeline requires mono internally; multi-channel device input
// is downmixed at the capture edge.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// Frame represents a single fixed-duration frame of audio flowing through
// the pipeline. Frames are immutable once produced: the capture edge converts
// device samples into mono PCM16 and never mutates Data afterwards.
type Frame struct {
	// Data is mono signed 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz of the samples in Data.
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of PCM16 samples in the frame.
func (f Frame) Samples() int {
	return len(f.Data) / 2
}

// Duration returns the play time of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
