package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics groups the platform collectors shared by every service.
// All Record* methods are nil-safe so a zero Metrics (see NewMock) can be passed in tests.
type Metrics struct {
	Runtime   *RuntimeMetrics
	Database  *DatabaseMetrics
	Messaging *MessagingMetrics
	Health    *HealthMetrics
	HTTP      *HTTPMetrics
	meter     metric.Meter
	logger    *slog.Logger
}

func New(ctx context.Context, serviceName string, logger *slog.Logger) (*Metrics, error) {
	meter := otel.Meter(serviceName)

	runtime, err := NewRuntimeMetrics(ctx, meter)
	if err != nil {
		return nil, err
	}

	database, err := NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, err
	}

	health, err := NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	logger.Info("metrics collectors initialized successfully")

	return &Metrics{
		Runtime:   runtime,
		Database:  database,
		Messaging: messaging,
		Health:    health,
		HTTP:      httpMetrics,
		meter:     meter,
		logger:    logger,
	}, nil
}

// Meter returns the meter the collectors were registered on.
func (m *Metrics) Meter() metric.Meter {
	if m == nil || m.meter == nil {
		return otel.Meter("noop")
	}
	return m.meter
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{
		Database:  &DatabaseMetrics{},
		Messaging: &MessagingMetrics{},
		Health:    &HealthMetrics{dependencies: map[string]*DependencyStatus{}},
		Runtime:   &RuntimeMetrics{},
		HTTP:      &HTTPMetrics{},
	}
}
