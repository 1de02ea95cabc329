package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprcli/internal/resilience"
)

// flakyStore fails a configurable number of times before succeeding.
type flakyStore struct {
	mu        sync.Mutex
	failures  int
	calls     int
	activeErr error
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.activeErr != nil {
		return f.activeErr
	}
	if f.calls <= f.failures {
		return errors.New("transient store failure")
	}
	return nil
}

func (f *flakyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyStore) FindActive(ctx context.Context, clientID string) (*Grant, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return activeGrant(clientID, time.Hour), nil
}

func (f *flakyStore) Activate(ctx context.Context, licenseKey, clientID string) (*Grant, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return activeGrant(clientID, time.Hour), nil
}

func (f *flakyStore) Deactivate(ctx context.Context, clientID string) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *flakyStore) DeactivateExpired(ctx context.Context, grantID int64) error {
	return f.fail()
}

func (f *flakyStore) TouchValidation(ctx context.Context, clientID string) error {
	return f.fail()
}

func (f *flakyStore) Close() error { return nil }

func newResilientStore(inner Store, threshold uint32) *ResilientStore {
	breaker := resilience.NewBreaker("test-store", resilience.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
		CallTimeout:      time.Second,
	}, slog.Default())
	invoker := resilience.NewInvoker(3, time.Millisecond, slog.Default())
	return NewResilientStore(inner, breaker, invoker)
}

func TestResilientStoreRetriesTransientFailures(t *testing.T) {
	inner := &flakyStore{failures: 2}
	store := newResilientStore(inner, 10)

	grant, err := store.FindActive(context.Background(), "acme")
	require.NoError(t, err)
	assert.NotNil(t, grant)
	assert.Equal(t, 3, inner.callCount(), "two failures then a success")
}

func TestResilientStoreGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyStore{failures: 100}
	store := newResilientStore(inner, 10)

	_, err := store.FindActive(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientStoreBusinessErrorsSkipRetryAndBreaker(t *testing.T) {
	inner := &flakyStore{activeErr: ErrAlreadyActive}
	store := newResilientStore(inner, 2)

	for i := 0; i < 5; i++ {
		_, err := store.Activate(context.Background(), "SPR-AAAA-BBBB-CCCC-2K00", "acme")
		require.ErrorIs(t, err, ErrAlreadyActive)
	}

	assert.Equal(t, 5, inner.callCount(), "business rejections are not retried")
	assert.Equal(t, resilience.StateClosed, store.Snapshot().State,
		"definitive answers from a healthy store must not trip the breaker")
}

func TestResilientStoreOpensCircuitAndFailsFast(t *testing.T) {
	inner := &flakyStore{failures: 1000}
	store := newResilientStore(inner, 2)

	// Each call burns its retry budget; consecutive failed executions
	// trip the breaker.
	_, _ = store.Deactivate(context.Background(), "acme")
	_, _ = store.Deactivate(context.Background(), "acme")

	require.Equal(t, resilience.StateOpen, store.Snapshot().State)

	before := inner.callCount()
	_, err := store.Deactivate(context.Background(), "acme")
	require.Error(t, err)

	var circuitErr *resilience.CircuitOpenError
	assert.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, before, inner.callCount(), "open circuit fails fast without touching the store")
}
