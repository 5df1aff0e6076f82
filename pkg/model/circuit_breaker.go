package model

import (
	"sync"
	"time"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
)

// CircuitState is the breaker's current disposition toward requests.
type CircuitState int

const (
	// CircuitClosed allows requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests outright.
	CircuitOpen
	// CircuitHalfOpen allows one probe to check for recovery.
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

// CircuitBreakerConfig tunes failure tolerance.
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32
	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker stops hammering a provider that is already failing.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    uint32
	lastFailureTime time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// State returns the current state name.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Call executes fn unless the circuit is open. The returned error carries
// ErrCodeModelCircuitOpen when the call was rejected without executing.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.state = CircuitHalfOpen
			cb.failureCount = 0
		} else {
			cb.mu.Unlock()
			return etymerrors.New(etymerrors.ErrCodeModelCircuitOpen,
				"model provider circuit is open").WithRetryable(true)
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// Must hold cb.mu.
func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	case CircuitClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.state = CircuitOpen
		}
	}
}

// Must hold cb.mu.
func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
	}
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}
