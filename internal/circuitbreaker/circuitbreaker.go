// Package circuitbreaker guards backend calls with a circuit breaker.
package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/guttosm/rental-manager/internal/logger"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed and requests pass through normally.
	StateClosed State = iota
	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen
	// StateHalfOpen means the circuit is half-open, allowing trial requests.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes needed to close the circuit.
	SuccessThreshold int
	// Timeout is the duration to wait before attempting to half-open the circuit.
	Timeout time.Duration
	// Name is the name of the circuit breaker (for logging).
	Name string
	// IsFailure decides which errors count against the circuit. Defaults to
	// every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Name:             "circuit-breaker",
	}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	config      Config
	cb          *gobreaker.CircuitBreaker
	lastFailure atomic.Int64
}

// New creates a new circuit breaker with the given configuration.
func New(config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	b := &CircuitBreaker{config: config}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: uint32(config.SuccessThreshold),
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			if err != nil && config.IsFailure(err) {
				b.lastFailure.Store(time.Now().UnixNano())
				return false
			}
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log := logger.Component("circuitbreaker")
			event := log.Info()
			if to == gobreaker.StateOpen {
				event = log.Warn()
			}
			event.
				Str("circuit_breaker", name).
				Str("from", fromGobreaker(from).String()).
				Str("to", fromGobreaker(to).String()).
				Msg("Circuit breaker state changed")
		},
	})
	return b
}

// Execute executes a function with circuit breaker protection.
// Returns ErrCircuitOpen if the circuit is open.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.config.Name
}

// State returns the current state of the circuit breaker.
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}

// IsOpen returns true if the circuit breaker is open.
func (b *CircuitBreaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Stats returns circuit breaker statistics.
type Stats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	Requests      int       `json:"requests"`
	TotalFailures int       `json:"total_failures"`
	LastFailure   time.Time `json:"last_failure"`
	IsHealthy     bool      `json:"is_healthy"`
}

// GetStats returns current circuit breaker statistics.
func (b *CircuitBreaker) GetStats() Stats {
	state := b.State()
	counts := b.cb.Counts()

	var last time.Time
	if ns := b.lastFailure.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Stats{
		Name:          b.config.Name,
		State:         state.String(),
		FailureCount:  int(counts.ConsecutiveFailures),
		SuccessCount:  int(counts.ConsecutiveSuccesses),
		Requests:      int(counts.Requests),
		TotalFailures: int(counts.TotalFailures),
		LastFailure:   last,
		IsHealthy:     state == StateClosed,
	}
}
