// Package circuitbreaker wraps sony/gobreaker with project defaults so every
// RPC-facing adapter trips consistently: open after a streak of failures,
// probe again after a short cool-off.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config carries the tunable subset of gobreaker settings.
type Config struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval over which failure counts are reset while closed.
	Interval time.Duration
	// Timeout before an open breaker transitions to half-open.
	Timeout time.Duration
	// ConsecutiveFailures before the breaker opens.
	ConsecutiveFailures uint32
	// OnStateChange is invoked on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns the settings used across the bot: open after 5
// consecutive failures, retry after 30 seconds.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker is a typed wrapper around gobreaker.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a breaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	return c.cb.Execute(fn)
}

// State returns the breaker's current state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}
