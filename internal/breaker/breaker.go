// Package breaker implements the exponential-backoff retry gate consulted by
// the Task Manager and every pipeline on transport-unreachable errors
// (spec.md §4.1). It is deliberately small: one mutable attempt counter and
// a sleep, not a circuit-breaker state machine with half-open probing.
package breaker

import (
	"context"
	"time"
)

// Config parameterizes one Breaker. Scale must be >= 1; a Scale of 1 yields
// a constant retry interval instead of a growing one.
type Config struct {
	Name         string        `yaml:"name"`
	BaseInterval time.Duration `yaml:"base_interval"`
	MaxRetries   int           `yaml:"max_retries"`
	Scale        float64       `yaml:"scale"`
}

// Breaker gates retries of one long-lived loop (a pipeline run loop or the
// Manager loop). It is not safe for concurrent use by more than one loop;
// spec.md §8 scopes one Breaker per loop, never a process-wide singleton.
type Breaker struct {
	cfg     Config
	attempt int
}

// New builds a Breaker from cfg with its attempt counter at zero.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg}
}

// Start resets the attempt counter. It exists alongside Reset so call sites
// can name the "beginning a run loop" case distinctly from "a retry
// succeeded", even though both zero the same counter.
func (b *Breaker) Start() { b.attempt = 0 }

// Reset returns the attempt counter to zero. Call after a successful
// re-open (spec.md §4.1).
func (b *Breaker) Reset() { b.attempt = 0 }

// Wait sleeps for BaseInterval * Scale^attempt, increments the attempt
// counter, and reports whether the caller should retry: true iff the
// resulting attempt count is within MaxRetries. If ctx is done before the
// sleep elapses, Wait returns false without completing the sleep.
func (b *Breaker) Wait(ctx context.Context) bool {
	interval := b.cfg.BaseInterval
	for i := 0; i < b.attempt; i++ {
		interval = time.Duration(float64(interval) * b.cfg.Scale)
	}
	b.attempt++

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return false
	}

	return b.attempt <= b.cfg.MaxRetries
}

// Attempt reports the current retry attempt count, for observability.
func (b *Breaker) Attempt() int { return b.attempt }
