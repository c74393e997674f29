// Package vad implements frame-level voice activity detection with pre-roll
// buffering, onset debounce, and hangover.
//
// The Detector consumes fixed-size mono PCM16 frames and emits SpeechStart
// and SpeechEnd events. Three mechanisms keep utterances intact:
//
//   - Pre-roll: the most recent frames are always buffered, and a SpeechStart
//     event carries a snapshot of them, so the first syllable is not clipped.
//   - Onset debounce: speech is only declared after a run of consecutive
//     speech frames, suppressing transient noise triggers.
//   - Hangover: speech only ends after a run of consecutive silence frames,
//     so trailing consonants are not truncated.
//
// Detection is synchronous by design: ProcessFrame returns immediately,
// making it suitable for the per-frame pipeline loop. A Detector is owned by
// a single goroutine and is not safe for concurrent use.
package vad

import (
	"fmt"
	"time"

	"github.com/openscrivo/scrivo/pkg/audio"
)

// EventType enumerates detection results.
type EventType int

const (
	// None indicates no state change on this frame.
	None EventType = iota

	// SpeechStart indicates speech has just begun; the event carries the
	// pre-roll snapshot.
	SpeechStart

	// SpeechEnd indicates speech has just ended after the hangover period.
	SpeechEnd
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case None:
		return "none"
	case SpeechStart:
		return "speech-start"
	case SpeechEnd:
		return "speech-end"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single frame.
type Event struct {
	Type EventType

	// PreRoll holds the frames buffered before onset, oldest first. Set only
	// on SpeechStart so the caller can prepend them to the session exactly
	// once.
	PreRoll []audio.Frame
}

// Config holds the tuning knobs for a [Detector]. Thresholds are
// configuration, not constants: the right values depend on microphone
// placement and room noise.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame. Default: 16000.
	SampleRate int

	// FrameDuration is the fixed duration of each frame. Supported values
	// are 10, 20, and 30 ms. Default: 20 ms.
	FrameDuration time.Duration

	// OnsetFrames is the number of consecutive speech frames required before
	// SpeechStart is emitted. Default: 3.
	OnsetFrames int

	// Hangover is the silence duration required before SpeechEnd is emitted.
	// Default: 300 ms.
	Hangover time.Duration

	// PreRoll is the amount of audio retained from before speech onset.
	// Default: 300 ms.
	PreRoll time.Duration

	// EnergyThreshold configures the default energy classifier. Ignored when
	// a custom classifier is supplied via [WithClassifier].
	EnergyThreshold float64
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 20 * time.Millisecond
	}
	if c.OnsetFrames <= 0 {
		c.OnsetFrames = 3
	}
	if c.Hangover <= 0 {
		c.Hangover = 300 * time.Millisecond
	}
	if c.PreRoll <= 0 {
		c.PreRoll = 300 * time.Millisecond
	}
}

// Detector tracks speech/silence run lengths across frames and turns the
// per-frame [Classifier] verdicts into debounced SpeechStart/SpeechEnd
// events.
type Detector struct {
	cfg        Config
	classifier Classifier

	frameSize      int // samples per frame
	hangoverFrames int

	speaking      bool
	speechFrames  int
	silenceFrames int
	preRoll       *PreRollRing
}

// Option configures a [Detector] during construction.
type Option func(*Detector)

// WithClassifier replaces the default energy classifier.
func WithClassifier(c Classifier) Option {
	return func(d *Detector) { d.classifier = c }
}

// New creates a Detector with the given configuration. Zero-value config
// fields are replaced with defaults.
func New(cfg Config, opts ...Option) (*Detector, error) {
	cfg.applyDefaults()

	switch cfg.FrameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
	default:
		return nil, fmt.Errorf("vad: unsupported frame duration %v (want 10ms, 20ms, or 30ms)", cfg.FrameDuration)
	}

	d := &Detector{
		cfg:            cfg,
		frameSize:      cfg.SampleRate * int(cfg.FrameDuration.Milliseconds()) / 1000,
		hangoverFrames: int(cfg.Hangover / cfg.FrameDuration),
		preRoll:        NewPreRollRing(int(cfg.PreRoll / cfg.FrameDuration)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.classifier == nil {
		d.classifier = NewEnergyClassifier(cfg.EnergyThreshold)
	}
	return d, nil
}

// FrameSize returns the required number of samples per frame.
func (d *Detector) FrameSize() int { return d.frameSize }

// Speaking reports whether the detector is currently inside a speech segment.
func (d *Detector) Speaking() bool { return d.speaking }

// ProcessFrame classifies one frame and returns the resulting event. The
// frame must contain exactly [Detector.FrameSize] samples.
//
// The pre-roll ring is updated before classification on every frame, so the
// snapshot carried by SpeechStart always holds the frames immediately
// preceding onset.
func (d *Detector) ProcessFrame(frame audio.Frame) (Event, error) {
	samples := audio.BytesToInt16(frame.Data)
	if len(samples) != d.frameSize {
		return Event{}, fmt.Errorf("vad: frame has %d samples, want %d", len(samples), d.frameSize)
	}

	d.preRoll.Push(frame)

	if d.classifier.IsSpeech(samples) {
		d.speechFrames++
		d.silenceFrames = 0

		if !d.speaking && d.speechFrames >= d.cfg.OnsetFrames {
			d.speaking = true
			return Event{Type: SpeechStart, PreRoll: d.preRoll.Snapshot()}, nil
		}
		return Event{Type: None}, nil
	}

	d.silenceFrames++
	d.speechFrames = 0

	if d.speaking && d.silenceFrames >= d.hangoverFrames {
		d.speaking = false
		return Event{Type: SpeechEnd}, nil
	}
	return Event{Type: None}, nil
}

// Reset clears all detection state, including the pre-roll ring. Call when a
// new recording session starts so stale frames from the previous session do
// not leak into the next pre-roll snapshot.
func (d *Detector) Reset() {
	d.speaking = false
	d.speechFrames = 0
	d.silenceFrames = 0
	d.preRoll.Clear()
}
