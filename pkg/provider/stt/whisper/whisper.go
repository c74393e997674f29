// Package whisper provides a local STT provider backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp requires 16 kHz mono input, so callers are expected to resample
// before transcribing; Transcribe rejects any other format rather than
// degrading silently. The model is loaded once at construction and shared
// across calls, with a fresh whisper context created per inference.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/openscrivo/scrivo/pkg/audio"
	"github.com/openscrivo/scrivo/pkg/provider/stt"
)

// RequiredSampleRate is the only sample rate whisper.cpp accepts.
const RequiredSampleRate = 16000

const defaultLanguage = "en"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO),
// running inference entirely in-process.
type Provider struct {
	model    whisperlib.Model
	language string

	// A whisper context is not safe for concurrent use, and creating one per
	// call is expensive enough that serializing inference is the simpler
	// trade. Dictation produces one utterance at a time anyway.
	mu sync.Mutex
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code for transcription (e.g. "en", "de").
// Defaults to "en"; "auto" enables language detection.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "whisper-native" }

// Transcribe implements stt.Provider. The WAV payload must contain 16 kHz
// mono PCM16 audio.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, format audio.Format) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if format.SampleRate != RequiredSampleRate || format.Channels != 1 {
		return stt.Result{}, fmt.Errorf("whisper: got %d Hz %d-channel audio, need %d Hz mono",
			format.SampleRate, format.Channels, RequiredSampleRate)
	}

	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: decode wav: %w", err)
	}
	if rate != RequiredSampleRate {
		return stt.Result{}, fmt.Errorf("whisper: wav header says %d Hz, need %d Hz", rate, RequiredSampleRate)
	}

	text, err := p.infer(audio.PCM16ToFloat32(samples))
	if err != nil {
		return stt.Result{}, err
	}

	return stt.Result{
		Text:     strings.TrimSpace(text),
		Provider: p.Name(),
	}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (p *Provider) infer(samples []float32) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
