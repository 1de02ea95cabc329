package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the breaker's tri-state machine
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// CircuitOpenError is returned when the breaker rejects a call without
// invoking the underlying operation.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// DownstreamTimeoutError is returned when a protected call exceeds its
// per-call timeout. It counts as a failure for breaker purposes.
type DownstreamTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *DownstreamTimeoutError) Error() string {
	return fmt.Sprintf("downstream %q timed out after %s", e.Name, e.Timeout)
}

// Config holds the breaker parameters
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold uint32
	// RecoveryTimeout is the cool-down before a half-open probe is allowed
	RecoveryTimeout time.Duration
	// CallTimeout bounds each protected call; zero disables the bound
	CallTimeout time.Duration
}

// Snapshot is a point-in-time view of the breaker state
type Snapshot struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at"`
}

// Breaker guards calls to one downstream dependency. A single instance is
// shared across all concurrent callers of that dependency so transitions
// have one mutation point.
type Breaker struct {
	name        string
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
	logger      *slog.Logger

	mu            sync.Mutex
	lastFailureAt time.Time
}

// NewBreaker creates a circuit breaker for the named dependency. The
// half-open state admits exactly one probe; its success closes the circuit
// and resets the failure counter, its failure re-opens and restarts the
// cool-down.
func NewBreaker(name string, cfg Config, logger *slog.Logger) *Breaker {
	b := &Breaker{
		name:        name,
		callTimeout: cfg.CallTimeout,
		logger: logger.With(
			slog.String("component", "circuit_breaker"),
			slog.String("breaker", name),
		),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				slog.String("from", string(fromGobreakerState(from))),
				slog.String("to", string(fromGobreakerState(to))))
		},
	})

	return b
}

// Execute runs fn through the breaker. When the circuit is open the call
// fails immediately with CircuitOpenError and fn is not invoked. A call
// exceeding the per-call timeout fails with DownstreamTimeoutError and
// counts against the failure threshold.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		callErr := b.callWithTimeout(ctx, fn)
		if callErr != nil {
			b.mu.Lock()
			b.lastFailureAt = time.Now()
			b.mu.Unlock()
		}
		return nil, callErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &CircuitOpenError{Name: b.name}
	}

	return err
}

// callWithTimeout bounds fn with the configured per-call timeout
func (b *Breaker) callWithTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.callTimeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &DownstreamTimeoutError{Name: b.name, Timeout: b.callTimeout}
		}
		return callCtx.Err()
	}
}

// Snapshot returns the current breaker state for the metrics surface
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	lastFailure := b.lastFailureAt
	b.mu.Unlock()

	return Snapshot{
		Name:                b.name,
		State:               fromGobreakerState(b.cb.State()),
		ConsecutiveFailures: b.cb.Counts().ConsecutiveFailures,
		LastFailureAt:       lastFailure,
	}
}

// State returns the breaker's current state
func (b *Breaker) State() State {
	return fromGobreakerState(b.cb.State())
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
