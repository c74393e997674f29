// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts to the pipeline and inspect
// which WAV payloads were submitted.
//
// Example:
//
//	p := &mock.Provider{Text: "hello world"}
//	result, _ := p.Transcribe(ctx, wav, format)
package mock

import (
	"context"
	"sync"

	"github.com/openscrivo/scrivo/pkg/audio"
	"github.com/openscrivo/scrivo/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the audio bytes that were passed to Transcribe.
	WAV []byte
	// Format is the audio format passed to Transcribe.
	Format audio.Format
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Text is returned as the transcription result.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Errs, if non-empty, is consumed one element per Transcribe call before
	// Err is consulted. A nil element means that call succeeds. This supports
	// fail-then-succeed retry scenarios.
	Errs []error

	// Delay, if set, is invoked before each Transcribe returns. It can block
	// on a channel to simulate slow backends.
	Delay func(ctx context.Context) error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Transcribe records the call and returns the configured text or error.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, format audio.Format) (stt.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		WAV:    append([]byte(nil), wav...),
		Format: format,
	})
	var err error
	if len(p.Errs) > 0 {
		err = p.Errs[0]
		p.Errs = p.Errs[1:]
	} else {
		err = p.Err
	}
	delay := p.Delay
	p.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return stt.Result{}, derr
		}
	}
	if err != nil {
		return stt.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	return stt.Result{Text: p.Text, Provider: p.Name()}, nil
}

// Calls returns a copy of the recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.TranscribeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
