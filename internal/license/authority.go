package license

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Authority orchestrates the store and cache to answer license questions.
// It is the single entry point for the access gate, the session authorizer,
// and the license HTTP handlers.
type Authority struct {
	store   Store
	cache   *Cache
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	// touchWG tracks in-flight validation touches so Close can drain them
	touchWG sync.WaitGroup
}

// NewAuthority creates a license authority over the given store and cache
func NewAuthority(store Store, cache *Cache, logger *slog.Logger) *Authority {
	return &Authority{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "license_authority")),
		now:    time.Now,
	}
}

// SetMetrics attaches OpenTelemetry instruments
func (a *Authority) SetMetrics(metrics *Metrics) {
	a.metrics = metrics
}

// GetStatus answers "is this client licensed right now". Expiry is evaluated
// against wall-clock now on every call, including cache hits, because clock
// time advances while a snapshot sits cached. A lapsed grant is deactivated
// in the store and evicted from the cache before the negative status is
// returned, so the flip happens exactly once.
//
// The returned error is reserved for infrastructure failures; absence and
// expiry are normal negative statuses.
func (a *Authority) GetStatus(ctx context.Context, clientID string) (Status, error) {
	now := a.now()

	if status, ok := a.cache.Get(clientID); ok {
		a.metrics.recordCacheHit(ctx)

		if status.Active && status.ExpiresAt != nil && status.ExpiresAt.Before(now) {
			return a.expireOnRead(ctx, clientID, nil)
		}

		a.metrics.recordStatusCheck(ctx, statusOutcome(status))
		return status, nil
	}
	a.metrics.recordCacheMiss(ctx)

	grant, err := a.store.FindActive(ctx, clientID)
	if err != nil {
		a.logger.ErrorContext(ctx, "license store read failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		return Status{}, err
	}

	if grant == nil {
		// Absence is a normal negative result, not an exception
		status := InactiveStatus(clientID, ReasonNoActiveLicense)
		a.metrics.recordStatusCheck(ctx, "no_license")
		return status, nil
	}

	if grant.Expired(now) {
		return a.expireOnRead(ctx, clientID, grant)
	}

	status := StatusFromGrant(grant)
	a.cache.Set(clientID, status)
	a.touchValidation(clientID)

	a.metrics.recordStatusCheck(ctx, "active")
	return status, nil
}

// expireOnRead synchronously deactivates a lapsed grant, evicts the cache
// entry, and returns the expired status. grant may be nil when the expiry
// was detected on a cached snapshot; the store update then targets the
// client's active grants as a whole.
func (a *Authority) expireOnRead(ctx context.Context, clientID string, grant *Grant) (Status, error) {
	var err error
	if grant != nil {
		err = a.store.DeactivateExpired(ctx, grant.ID)
	} else {
		_, err = a.store.Deactivate(ctx, clientID)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to deactivate expired grant",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		return Status{}, err
	}

	a.cache.Delete(clientID)
	a.metrics.recordExpiration(ctx)
	a.metrics.recordStatusCheck(ctx, "expired")

	a.logger.InfoContext(ctx, "license expired on read",
		slog.String("client_id", clientID))

	return InactiveStatus(clientID, ReasonExpired), nil
}

// touchValidation fires a best-effort validation touch off the read path.
// Failures are logged and swallowed; they must never fail the caller's read.
func (a *Authority) touchValidation(clientID string) {
	a.touchWG.Add(1)
	go func() {
		defer a.touchWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.store.TouchValidation(ctx, clientID); err != nil {
			a.logger.WarnContext(ctx, "validation touch failed",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
		}
	}()
}

// Activate delegates to the store and, on success, evicts any stale cache
// entry so the next GetStatus re-reads, then returns the fresh status.
// Failures leave the cache untouched.
func (a *Authority) Activate(ctx context.Context, licenseKey, clientID string) (Status, error) {
	grant, err := a.store.Activate(ctx, licenseKey, clientID)
	if err != nil {
		a.metrics.recordActivation(ctx, activationOutcome(err))
		return Status{}, err
	}

	// Cache invalidation happens after the store write so a stale cached
	// status can never outlive the activation
	a.cache.Delete(clientID)
	a.metrics.recordActivation(ctx, "success")

	a.logger.InfoContext(ctx, "license activated",
		slog.String("license_key", MaskKey(licenseKey)),
		slog.String("client_id", clientID))

	return StatusFromGrant(grant), nil
}

// Deactivate delegates to the store, evicts the cache entry, and returns
// the affected-row count.
func (a *Authority) Deactivate(ctx context.Context, clientID string) (int64, error) {
	affected, err := a.store.Deactivate(ctx, clientID)
	if err != nil {
		return 0, err
	}

	a.cache.Delete(clientID)
	a.metrics.recordDeactivation(ctx)

	return affected, nil
}

// CacheStats exposes the status cache counters for the metrics endpoint
func (a *Authority) CacheStats() CacheStats {
	return a.cache.Stats()
}

// Close drains in-flight validation touches and stops the cache
func (a *Authority) Close() {
	a.touchWG.Wait()
	a.cache.Stop()
}

func statusOutcome(status Status) string {
	if status.Active {
		return "active"
	}
	if status.Error == ReasonExpired {
		return "expired"
	}
	return "no_license"
}

func activationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isInvalidKey(err):
		return "invalid_key"
	case isAlreadyActive(err):
		return "already_active"
	default:
		return "error"
	}
}
