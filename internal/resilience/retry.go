package resilience

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

const maxShift = 62

// Invoker retries a fallible operation with exponential backoff and full
// jitter. The attempt budget bounds the loop; there is no wall-clock bound
// of its own beyond the per-call timeouts of the operation.
type Invoker struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger

	// sleep is swapped out by tests to observe delays without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an invoker with the given attempt budget and base delay
func NewInvoker(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Invoker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Invoker{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger.With(slog.String("component", "resilient_invoker")),
		sleep:       sleepContext,
	}
}

// Invoke runs fn up to the attempt budget. After a failed attempt n
// (zero-based) it waits baseDelay*2^n plus random jitter before the next
// attempt. The final failure is returned unchanged.
func (i *Invoker) Invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == i.maxAttempts-1 {
			break
		}

		delay := Exponential(i.baseDelay, attempt) + FullJitter(i.baseDelay)

		i.logger.DebugContext(ctx, "retrying after failure",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", i.maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()))

		if err := i.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// InvokeThrough runs the whole retry loop inside a single breaker execution.
// When the breaker is open, CircuitOpenError propagates immediately and no
// attempt is made.
func (i *Invoker) InvokeThrough(ctx context.Context, breaker *Breaker, fn func(ctx context.Context) error) error {
	return breaker.Execute(ctx, func(ctx context.Context) error {
		return i.Invoke(ctx, fn)
	})
}

// Exponential calculates base*2^attempt with overflow protection.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in the range [0, delay)
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
