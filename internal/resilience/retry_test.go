package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoker(maxAttempts int, base time.Duration) (*Invoker, *[]time.Duration) {
	invoker := NewInvoker(maxAttempts, base, slog.Default())

	delays := &[]time.Duration{}
	invoker.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return invoker, delays
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	invoker, delays := newTestInvoker(3, 100*time.Millisecond)

	calls := 0
	err := invoker.Invoke(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestInvokeRetriesUntilSuccess(t *testing.T) {
	invoker, delays := newTestInvoker(3, 100*time.Millisecond)

	calls := 0
	err := invoker.Invoke(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fails twice, succeeds on the third attempt")
	require.Len(t, *delays, 2)

	// Each delay is baseDelay*2^attempt plus jitter in [0, baseDelay).
	assert.GreaterOrEqual(t, (*delays)[0], 100*time.Millisecond)
	assert.Less(t, (*delays)[0], 200*time.Millisecond)
	assert.GreaterOrEqual(t, (*delays)[1], 200*time.Millisecond)
	assert.Less(t, (*delays)[1], 300*time.Millisecond)
}

func TestInvokeReturnsFinalErrorUnchanged(t *testing.T) {
	invoker, _ := newTestInvoker(3, time.Millisecond)
	finalErr := errors.New("persistent failure")

	calls := 0
	err := invoker.Invoke(context.Background(), func(ctx context.Context) error {
		calls++
		return finalErr
	})

	assert.ErrorIs(t, err, finalErr)
	assert.Equal(t, 3, calls)
}

func TestInvokeStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	invoker := NewInvoker(5, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	invoker.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := invoker.Invoke(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestInvokerClampsAttemptBudget(t *testing.T) {
	invoker, _ := newTestInvoker(0, time.Millisecond)

	calls := 0
	_ = invoker.Invoke(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls, "budget below one clamps to a single attempt")
}

func TestExponential(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, Exponential(base, 0))
	assert.Equal(t, 200*time.Millisecond, Exponential(base, 1))
	assert.Equal(t, 800*time.Millisecond, Exponential(base, 3))
	assert.Equal(t, 100*time.Millisecond, Exponential(base, -5), "negative attempt treated as zero")
	assert.Equal(t, time.Duration(0), Exponential(0, 3))
	assert.Equal(t, time.Duration(math.MaxInt64), Exponential(time.Hour, 62), "overflow saturates")
}

func TestFullJitterStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		jitter := FullJitter(50 * time.Millisecond)
		assert.GreaterOrEqual(t, jitter, time.Duration(0))
		assert.Less(t, jitter, 50*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), FullJitter(0))
}
