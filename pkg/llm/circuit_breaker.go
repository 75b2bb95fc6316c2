package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the provider while the breaker is open.
var ErrCircuitOpen = errors.New("llm circuit breaker open")

// CircuitState is the position of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// CircuitBreakerConfig sets when the breaker opens and how long it stays open.
type CircuitBreakerConfig struct {
	Threshold  int           // consecutive failures that open the circuit
	ResetAfter time.Duration // wait before a single probe request is let through
}

// DefaultCircuitBreakerConfig opens after 3 failures and probes after 30s.
// Intent, mapping and SQL generation all have rule-based fallbacks, so a
// struggling provider is skipped early.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 3, ResetAfter: 30 * time.Second}
}

// CircuitBreaker guards LLM calls. Closed lets every call through, open
// refuses calls until ResetAfter has passed, half-open admits one probe whose
// outcome closes or reopens the circuit.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker. A threshold below 1 is raised to 1.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.Threshold = max(cfg.Threshold, 1)
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow returns nil when a call may proceed, or an error wrapping
// ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		wait := cb.cfg.ResetAfter - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w after %d failures, next probe in %v", ErrCircuitOpen, cb.failures, wait.Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.state, cb.failures = CircuitClosed, 0
	cb.mu.Unlock()
}

// RecordFailure counts a failure. The circuit opens at the threshold, and at
// once when the failed call was the half-open probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current position of the breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
