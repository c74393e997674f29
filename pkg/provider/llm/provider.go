// Package llm defines the Provider interface for text formatting backends.
//
// Dictation produces raw transcripts; an LLM provider turns them into clean
// prose by applying a formatting instruction. The contract is deliberately a
// single blocking call: one transcript in, one formatted string out. There is
// no conversation state, tool calling, or streaming, because the pipeline
// treats formatting as a pure post-processing step that either succeeds or
// is skipped in favor of the raw transcript.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// CompletionRequest describes a single formatting request.
type CompletionRequest struct {
	// SystemPrompt is the formatting instruction.
	SystemPrompt string

	// UserText is the raw transcript to format.
	UserText string

	// Temperature controls sampling randomness. Zero means the provider
	// default; dictation formatting usually wants low values.
	Temperature float64

	// MaxTokens bounds the response length. Zero means no explicit bound.
	MaxTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Name returns the backend identifier for logging and event payloads.
	Name() string

	// Complete submits the request and blocks until the formatted text is
	// available or ctx is done. An empty response is an error; callers rely
	// on a non-empty result to replace the raw transcript.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
