// Package telemetry exports the monitor metrics over OTLP.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const (
	ServiceName = "infrasight-mon"
	meterName   = "github.com/ALEYI17/InfraSight_mon"
)

type Config struct {
	Endpoint string
	Insecure bool
	Interval time.Duration
}

type Provider struct {
	mp *sdkmetric.MeterProvider
}

// Setup installs a global meter provider exporting to cfg.Endpoint. With
// no endpoint the global no-op provider stays in place.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{}, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p, err := newProvider(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(p.mp)
	logutil.GetLogger().Info("Metric export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("interval", interval))
	return p, nil
}

func newProvider(reader sdkmetric.Reader) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return &Provider{
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)),
	}, nil
}

func (p *Provider) Meter() metric.Meter {
	if p.mp == nil {
		return otel.Meter(meterName)
	}
	return p.mp.Meter(meterName)
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
