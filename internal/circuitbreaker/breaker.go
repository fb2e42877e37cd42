// Package circuitbreaker guards calls to the assessment database and the entry cache
// so that a failing backend is shed quickly instead of holding request goroutines.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

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

var (
	ErrOpen            = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings tune a breaker
type Settings struct {
	// MaxProbes bounds concurrent calls while half-open
	MaxProbes uint32
	// Interval clears the closed-state counters; zero never clears them
	Interval time.Duration
	// Cooldown is how long the breaker stays open before probing
	Cooldown         time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsFailure decides whether an error trips the breaker. Nil counts every error
	// except context cancellation.
	IsFailure func(error) bool
}

// DatabaseSettings are the defaults for the assessment database
func DatabaseSettings() Settings {
	return Settings{
		MaxProbes:        3,
		Interval:         60 * time.Second,
		Cooldown:         30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// CacheSettings are the defaults for the redis entry cache
func CacheSettings() Settings {
	return Settings{
		MaxProbes:        5,
		Interval:         30 * time.Second,
		Cooldown:         15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

// Counts are the statistics of the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker implements the closed / open / half-open state machine
type Breaker struct {
	name     string
	settings Settings
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a closed breaker
func New(name string, settings Settings, logger *zap.Logger) *Breaker {
	if settings.MaxProbes == 0 {
		settings.MaxProbes = 1
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 1
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = 1
	}
	b := &Breaker{name: name, settings: settings, logger: logger, now: time.Now}
	b.newGeneration(b.now())
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the breaker name used in logs and metrics
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is rejecting calls
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.admit()
	if err != nil {
		metrics.CircuitBreakerRejections.WithLabelValues(b.name).Inc()
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(gen, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.record(gen, !b.isFailure(err))
	return err
}

// State returns the current state, advancing an expired open breaker to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.current(b.now())
	return state
}

// Counts returns the counters of the current generation
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Breaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if b.settings.IsFailure != nil {
		return b.settings.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, gen := b.current(b.now())
	switch {
	case state == StateOpen:
		return gen, ErrOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.MaxProbes:
		return gen, ErrTooManyRequests
	}
	b.counts.Requests++
	return gen, nil
}

func (b *Breaker) record(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state, current := b.current(now)
	if current != gen {
		return
	}

	if ok {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.SuccessThreshold {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.newGeneration(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.newGeneration(now)

	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(float64(to))
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (b *Breaker) newGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}

	switch b.state {
	case StateClosed:
		if b.settings.Interval == 0 {
			b.expiry = time.Time{}
		} else {
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		b.expiry = now.Add(b.settings.Cooldown)
	default:
		b.expiry = time.Time{}
	}
}

// Do runs fn through b and returns its value
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
