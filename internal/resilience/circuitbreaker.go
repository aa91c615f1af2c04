// Package resilience provides circuit breaker and provider failover primitives.
//
// [Router] is the conversational model router: an ordered registry of model
// adapters with a "current" pointer, one-shot preferred-model routing and
// fallback across every configured adapter. Each adapter is guarded by a
// [CircuitBreaker], a classic three-state breaker (closed → open → half-open).
// [FallbackGroup] composes multiple instances of any other provider type
// (e.g. speech synthesis) with the same per-entry breakers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. That many
	// successes close the breaker; one failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

// String returns the human-readable name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the guarded adapter in logs and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: [DefaultMaxFailures].
	MaxFailures int

	// ResetTimeout is how long an open breaker waits after its last failure
	// before it admits probes. Default: [DefaultResetTimeout].
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted while half-open and
	// the number of successful probes needed to close. Default:
	// [DefaultHalfOpenMax].
	HalfOpenMax int

	// OnStateChange, if set, is called after every state transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards one backend adapter.
//
// Errors caused by the caller cancelling its context are neither failures
// nor successes: they say nothing about the adapter's health.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int // consecutive failures while closed
	openedAt  time.Time
	probes    int // probes admitted in the current half-open window
	probeWins int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero config fields are
// replaced with the package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// Execute runs fn when the breaker admits the call and returns fn's error.
// Rejected calls return [ErrCircuitOpen] without running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, changes, err := cb.admit()
	cb.notify(changes)
	if err != nil {
		return err
	}

	err = fn()

	cb.notify(cb.settle(probe, err))
	return err
}

// transition is one state change to report once the lock is released.
type transition struct{ from, to State }

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, changes []transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, nil, ErrCircuitOpen
		}
		changes = append(changes, cb.moveTo(StateHalfOpen))
	}
	if cb.state != StateHalfOpen {
		return false, changes, nil
	}
	if cb.probes >= cb.cfg.HalfOpenMax {
		return false, changes, ErrCircuitOpen
	}
	cb.probes++
	return true, changes, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) []transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen)):
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
		return nil

	case err != nil:
		if probe {
			if cb.state != StateHalfOpen {
				return nil
			}
			slog.Warn("circuit breaker probe failed", "adapter", cb.cfg.Name, "err", err)
			return []transition{cb.moveTo(StateOpen)}
		}
		if cb.state != StateClosed {
			return nil
		}
		cb.failures++
		if cb.failures < cb.cfg.MaxFailures {
			return nil
		}
		slog.Warn("circuit breaker opened", "adapter", cb.cfg.Name, "consecutive_failures", cb.failures, "err", err)
		return []transition{cb.moveTo(StateOpen)}

	case probe:
		if cb.state != StateHalfOpen {
			return nil
		}
		cb.probeWins++
		if cb.probeWins < cb.cfg.HalfOpenMax {
			return nil
		}
		return []transition{cb.moveTo(StateClosed)}

	default:
		if cb.state == StateClosed {
			cb.failures = 0
		}
		return nil
	}
}

// moveTo switches state and resets the counters of the state entered. Must be
// called with cb.mu held.
func (cb *CircuitBreaker) moveTo(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	switch to {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openedAt = cb.now()
	case StateHalfOpen:
		cb.probes, cb.probeWins = 0, 0
	}
	if t.from != t.to {
		slog.Info("circuit breaker state changed", "adapter", cb.cfg.Name, "from", t.from, "to", t.to)
	}
	return t
}

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, t := range changes {
		if t.from != t.to {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.moveTo(StateClosed)
	cb.probes, cb.probeWins = 0, 0
	cb.mu.Unlock()

	cb.notify([]transition{t})
}
