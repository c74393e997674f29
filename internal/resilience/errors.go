// Package resilience provides error classification, retry with exponential
// backoff, and a circuit breaker for provider calls.
//
// Provider backends fail in distinct ways that demand distinct reactions:
// a rate limit or transient network fault is worth retrying, an invalid API
// key is not, and a malformed audio payload will never succeed no matter how
// often it is resent. [Classify] maps raw backend errors onto a small set of
// [Kind] values, [Do] retries the retryable ones, and [CircuitBreaker] stops
// hammering a backend that keeps failing.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"

	oai "github.com/openai/openai-go"
)

// Kind categorizes a provider error by how the caller should react.
type Kind int

const (
	// KindUnknown is the default for errors that match no other category.
	// Treated as non-retryable.
	KindUnknown Kind = iota

	// KindNetwork covers connection failures and timeouts. Retryable.
	KindNetwork

	// KindAPI covers server-side failures (HTTP 5xx). Retryable.
	KindAPI

	// KindRateLimited covers HTTP 429 responses. Retryable with backoff.
	KindRateLimited

	// KindAuth covers authentication and authorization failures (HTTP 401,
	// 403). Terminal: retrying with the same credentials cannot succeed.
	KindAuth

	// KindAudio covers malformed or unusable audio payloads. Terminal.
	KindAudio

	// KindConfig covers invalid provider configuration detected locally.
	// Terminal.
	KindConfig
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindRateLimited:
		return "rate-limited"
	case KindAuth:
		return "auth"
	case KindAudio:
		return "audio"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps a provider error with its classification.
type Error struct {
	// Kind is the error category.
	Kind Kind

	// Provider identifies the backend that produced the error.
	Provider string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified error with an explicit kind. Use this when
// the caller already knows the category, such as local validation failures.
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Classify wraps err in an [Error] with a kind derived from its shape.
// Already-classified errors pass through unchanged. A nil err returns nil.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	return &Error{Kind: classify(err), Provider: provider, Err: err}
}

func classify(err error) Kind {
	// Timeouts and connection failures, including context deadlines hit
	// mid-request.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	// Both the openai and groq backends surface HTTP failures as the SDK's
	// API error carrying the status code.
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return KindRateLimited
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return KindAuth
		case apiErr.StatusCode >= 500:
			return KindAPI
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 415 || apiErr.StatusCode == 422:
			return KindAudio
		}
	}

	return KindUnknown
}

// KindOf returns the classification of err, or KindUnknown when err carries
// no [Error].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is worth retrying. Unclassified errors are
// not retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindAPI, KindRateLimited:
		return true
	default:
		return false
	}
}
