package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTelProviders holds the OpenTelemetry metric pipeline and its Prometheus
// registry. Metrics recorded through the global meter are scraped from the
// /metrics endpoint.
type OTelProviders struct {
	MeterProvider *sdkmetric.MeterProvider
	Registry      *prometheus.Registry
	logger        *slog.Logger
}

// InitializeOTel sets up the metric pipeline with a Prometheus exporter and
// registers it as the global meter provider.
func InitializeOTel(serviceName, version string, logger *slog.Logger) (*OTelProviders, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &OTelProviders{
		MeterProvider: provider,
		Registry:      registry,
		logger:        logger.With(slog.String("component", "otel")),
	}, nil
}

// Shutdown flushes and stops the metric pipeline
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}

	p.logger.InfoContext(ctx, "shutting down otel meter provider")
	return p.MeterProvider.Shutdown(ctx)
}
