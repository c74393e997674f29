package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: circuit breaker is open")

// BreakerState represents the current operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed is the normal state. Calls pass through.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker tripped on consecutive failures. Calls
	// fail fast with [ErrBreakerOpen] until the cooldown elapses.
	BreakerOpen

	// BreakerHalfOpen is the probe state after the cooldown. A limited
	// number of calls pass through; their outcome decides whether the
	// breaker closes or re-opens.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages, typically the
	// provider name.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30 s.
	Cooldown time.Duration

	// ProbeQuota is the number of successful probes in the half-open state
	// required to close the breaker. Default: 2.
	ProbeQuota int
}

// CircuitBreaker implements the three-state breaker pattern around provider
// calls. A sequence of terminal failures opens the breaker, after which calls
// fail fast instead of burning retry budget against a dead backend.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeQuota  int

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
}

// NewCircuitBreaker creates a breaker with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 2
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probeQuota:  cfg.ProbeQuota,
		state:       BreakerClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrBreakerOpen] without calling fn. A cancelled ctx fails before fn runs
// and does not count against the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cb.mu.Lock()
	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			cb.mu.Unlock()
			return ErrBreakerOpen
		}
		cb.state = BreakerHalfOpen
		cb.probes = 0
		slog.Info("circuit breaker half-open", "name", cb.name)
	}
	probing := cb.state == BreakerHalfOpen
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		// Context cancellation reflects the caller giving up, not backend
		// health.
		if errors.Is(err, context.Canceled) {
			return err
		}
		cb.lastFailure = time.Now()
		if probing {
			cb.state = BreakerOpen
			cb.failures = cb.maxFailures
			slog.Warn("circuit breaker re-opened", "name", cb.name)
			return err
		}
		cb.failures++
		if cb.state == BreakerClosed && cb.failures >= cb.maxFailures {
			cb.state = BreakerOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failures)
		}
		return err
	}

	if probing {
		cb.probes++
		if cb.probes >= cb.probeQuota {
			cb.state = BreakerClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}
		return nil
	}
	cb.failures = 0
	return nil
}

// State returns the breaker's current state. When the cooldown of an open
// breaker has elapsed the reported state is half-open even though the actual
// transition happens on the next Execute.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && time.Since(cb.lastFailure) >= cb.cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = BreakerClosed
	cb.failures = 0
	cb.probes = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
