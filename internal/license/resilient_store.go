package license

import (
	"context"
	"errors"

	"sprcli/internal/resilience"
)

// ResilientStore decorates a Store with a circuit breaker and retry policy.
// Infrastructure failures trip the breaker and are retried; business
// outcomes (bad key, already active) pass straight through without
// counting against the breaker.
type ResilientStore struct {
	inner   Store
	breaker *resilience.Breaker
	invoker *resilience.Invoker
}

// NewResilientStore wraps the store. The breaker and invoker are shared
// across all store operations so failures anywhere open the one circuit.
func NewResilientStore(inner Store, breaker *resilience.Breaker, invoker *resilience.Invoker) *ResilientStore {
	return &ResilientStore{inner: inner, breaker: breaker, invoker: invoker}
}

// Snapshot exposes the breaker state for the metrics endpoint.
func (s *ResilientStore) Snapshot() resilience.Snapshot {
	return s.breaker.Snapshot()
}

func (s *ResilientStore) FindActive(ctx context.Context, clientID string) (*Grant, error) {
	var grant *Grant
	err := s.invoker.InvokeThrough(ctx, s.breaker, func(ctx context.Context) error {
		g, err := s.inner.FindActive(ctx, clientID)
		if err != nil {
			return err
		}
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *ResilientStore) Activate(ctx context.Context, licenseKey, clientID string) (*Grant, error) {
	var (
		grant  *Grant
		bizErr error
	)
	err := s.invoker.InvokeThrough(ctx, s.breaker, func(ctx context.Context) error {
		g, err := s.inner.Activate(ctx, licenseKey, clientID)
		if err != nil {
			// A rejected key or duplicate activation is a definitive
			// answer from a healthy store, not a failure to retry.
			if errors.Is(err, ErrInvalidKeyFormat) || errors.Is(err, ErrAlreadyActive) {
				bizErr = err
				return nil
			}
			return err
		}
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bizErr != nil {
		return nil, bizErr
	}
	return grant, nil
}

func (s *ResilientStore) Deactivate(ctx context.Context, clientID string) (int64, error) {
	var affected int64
	err := s.invoker.InvokeThrough(ctx, s.breaker, func(ctx context.Context) error {
		n, err := s.inner.Deactivate(ctx, clientID)
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *ResilientStore) DeactivateExpired(ctx context.Context, grantID int64) error {
	return s.invoker.InvokeThrough(ctx, s.breaker, func(ctx context.Context) error {
		return s.inner.DeactivateExpired(ctx, grantID)
	})
}

// TouchValidation goes through the breaker but skips retries; it is fired
// on every validated read and losing one is harmless.
func (s *ResilientStore) TouchValidation(ctx context.Context, clientID string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.TouchValidation(ctx, clientID)
	})
}

func (s *ResilientStore) Close() error {
	return s.inner.Close()
}
