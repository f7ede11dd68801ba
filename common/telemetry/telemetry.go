package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"candidate-service/common/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is the gRPC collector address; empty keeps metrics in-process only.
	OTLPEndpoint   string
	ExportInterval time.Duration
}

type Telemetry struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *metrics.Metrics
	logger        *slog.Logger
}

func InitMeterProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		logger.Info("initializing OTel metrics", "endpoint", cfg.OTLPEndpoint)

		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}

		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	} else {
		logger.Info("OTLP endpoint not configured, metrics are not exported")
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}

func Init(ctx context.Context, cfg Config, logger *slog.Logger) (*Telemetry, error) {
	meterProvider, err := InitMeterProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(ctx, cfg.ServiceName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := m.Health.RegisterServiceInfo(ctx, m.Meter(), cfg.ServiceName, cfg.ServiceVersion, cfg.Environment); err != nil {
		logger.Warn("failed to register service info", "error", err)
	}

	return &Telemetry{
		MeterProvider: meterProvider,
		Metrics:       m,
		logger:        logger,
	}, nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.MeterProvider == nil {
		return nil
	}
	t.logger.Info("shutting down OTel meter provider")
	if err := t.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}
