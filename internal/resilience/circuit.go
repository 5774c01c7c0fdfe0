// Package resilience provides the circuit breaker, retry, and concurrency
// limiting patterns used around external provider calls.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures — calls are short-circuited.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitConfig controls circuit breaker behavior.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 3.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before the next call is
	// treated as a half-open probe. Default: 60s.
	Cooldown time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(provider string, from, to CircuitState)
}

// DefaultCircuitConfig returns sensible defaults for provider calls.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
	}
}

// CircuitBreaker tracks the failure state of a single provider. Callers check
// IsOpen before issuing a call and report the outcome with RecordFailure or
// RecordSuccess; an open breaker means the caller substitutes a skipped
// outcome instead of calling the provider.
type CircuitBreaker struct {
	cfg      CircuitConfig
	provider string

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	probeInFlight       bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a breaker for the named provider.
func NewCircuitBreaker(provider string, cfg CircuitConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		cfg:      cfg,
		provider: provider,
		state:    CircuitClosed,
		nowFunc:  time.Now,
	}
}

// IsOpen reports whether calls should be short-circuited. Once the cooldown
// has elapsed the breaker moves to half-open and exactly one caller is
// admitted as the probe; everyone else stays short-circuited until that
// probe's outcome is recorded.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.lastFailureTime) < cb.cfg.Cooldown {
			return true
		}
		cb.transition(CircuitHalfOpen)
		cb.probeInFlight = true
		return false
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return true
		}
		cb.probeInFlight = true
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure counter. In half-open state the probe
// succeeded, so the circuit closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.probeInFlight = false
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// RecordFailure increments the rolling failure counter. Crossing the
// threshold opens the circuit; any failure in half-open re-opens it and
// restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probeInFlight = false
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

// State returns the current circuit state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit back to closed. Useful for tests and manual
// recovery.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.probeInFlight = false
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// Counters returns the failure count and state for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures, cb.state
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.provider, from, to)
	}
}

// Breakers manages per-provider circuit breakers shared by all workers within
// a run. All methods are safe for concurrent use.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitConfig
}

// NewBreakers creates a registry of per-provider circuit breakers.
func NewBreakers(cfg CircuitConfig) *Breakers {
	return &Breakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named provider, creating one if needed.
func (b *Breakers) Get(provider string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[provider]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = b.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(provider, b.cfg)
	b.breakers[provider] = cb
	return cb
}

// IsOpen reports whether the named provider's circuit is open.
func (b *Breakers) IsOpen(provider string) bool {
	return b.Get(provider).IsOpen()
}

// RecordSuccess records a successful call against the provider's breaker.
func (b *Breakers) RecordSuccess(provider string) {
	b.Get(provider).RecordSuccess()
}

// RecordFailure records a failed call against the provider's breaker.
func (b *Breakers) RecordFailure(provider string) {
	b.Get(provider).RecordFailure()
}

// States returns a snapshot of all breaker states.
func (b *Breakers) States() map[string]CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	states := make(map[string]CircuitState, len(b.breakers))
	for provider, cb := range b.breakers {
		states[provider] = cb.State()
	}
	return states
}
