package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry instruments for license operations
type Metrics struct {
	StatusChecks  metric.Int64Counter
	CacheHits     metric.Int64Counter
	CacheMisses   metric.Int64Counter
	Activations   metric.Int64Counter
	Deactivations metric.Int64Counter
	Expirations   metric.Int64Counter
}

// NewMetrics creates license metrics on the global meter provider
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("sprcli/license")

	statusChecks, err := meter.Int64Counter("license_status_checks_total",
		metric.WithDescription("License status checks by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create status checks counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter("license_cache_hits_total",
		metric.WithDescription("License status cache hits"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter("license_cache_misses_total",
		metric.WithDescription("License status cache misses"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	activations, err := meter.Int64Counter("license_activations_total",
		metric.WithDescription("License activations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create activations counter: %w", err)
	}

	deactivations, err := meter.Int64Counter("license_deactivations_total",
		metric.WithDescription("License deactivations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create deactivations counter: %w", err)
	}

	expirations, err := meter.Int64Counter("license_expirations_total",
		metric.WithDescription("Grants flipped inactive by expiry-on-read"))
	if err != nil {
		return nil, fmt.Errorf("failed to create expirations counter: %w", err)
	}

	return &Metrics{
		StatusChecks:  statusChecks,
		CacheHits:     cacheHits,
		CacheMisses:   cacheMisses,
		Activations:   activations,
		Deactivations: deactivations,
		Expirations:   expirations,
	}, nil
}

func (m *Metrics) recordStatusCheck(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.StatusChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

func (m *Metrics) recordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

func (m *Metrics) recordActivation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Activations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordDeactivation(ctx context.Context) {
	if m == nil {
		return
	}
	m.Deactivations.Add(ctx, 1)
}

func (m *Metrics) recordExpiration(ctx context.Context) {
	if m == nil {
		return
	}
	m.Expirations.Add(ctx, 1)
}
