package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration
	// Probes is the number of half-open successes needed to close again
	Probes uint32
	// IsFailure decides whether an error counts against the target
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker stops calling a target that keeps failing
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	inflight  uint32
	openedAt  time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	return newBreaker(name, settings, time.Now)
}

func newBreaker(name string, settings Settings, now func() time.Time) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{name: name, settings: settings, now: now}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Call runs fn if the breaker admits it and records the outcome. Errors
// caused by ctx ending are not held against the target.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	b.record(ctx, err)
	return result, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.inflight >= b.settings.Probes {
			return ErrTooManyRequests
		}
	}
	b.inflight++
	return nil
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inflight > 0 {
		b.inflight--
	}
	if err != nil && ctx.Err() != nil {
		return
	}

	state := b.currentLocked()
	if err == nil || !b.settings.IsFailure(err) {
		b.failures = 0
		if state == StateHalfOpen {
			b.successes++
			if b.successes >= b.settings.Probes {
				b.setStateLocked(StateClosed)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.setStateLocked(StateOpen)
	}
}

// currentLocked moves an open breaker to half-open once the cooldown passed
func (b *Breaker) currentLocked() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setStateLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setStateLocked(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.failures = 0
	b.successes = 0
	if state == StateOpen {
		b.openedAt = b.now()
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
