// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (the OpenAI Whisper API, an
// OpenAI-compatible endpoint such as Groq, or local whisper.cpp inference)
// and exposes a uniform batch interface: a complete WAV-encoded utterance in,
// its transcript out. Dictation works on whole utterances, so there is no
// streaming session to manage; each call is independent.
//
// Implementations must be safe for concurrent use. A single provider instance
// may serve overlapping transcription requests when utterances arrive faster
// than the backend responds.
package stt

import (
	"context"

	"github.com/openscrivo/scrivo/pkg/audio"
)

// Result is the outcome of a transcription request.
type Result struct {
	// Text is the transcribed text, trimmed of leading and trailing
	// whitespace. Empty when the audio contained no recognizable speech.
	Text string

	// Provider identifies the backend that produced the text (e.g. "openai",
	// "groq", "whisper-native"). Useful for logging and event payloads when
	// the active provider can change between utterances.
	Provider string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Name returns the backend identifier reported in [Result.Provider].
	Name() string

	// Transcribe submits a complete WAV file for transcription and blocks
	// until the transcript is available or ctx is done. The format describes
	// the PCM stream inside the WAV container; backends with fixed input
	// requirements (local whisper.cpp wants 16 kHz mono) return an error when
	// the format does not match rather than silently degrading.
	Transcribe(ctx context.Context, wav []byte, format audio.Format) (Result, error)
}
