package metrics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DatabaseMetrics covers query latency per operation and the sql.DB pool.
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	queryErrors   metric.Int64Counter

	pool         metric.Int64ObservableGauge
	waitCount    metric.Int64ObservableCounter
	waitDuration metric.Float64ObservableCounter
}

func NewDatabaseMetrics(meter metric.Meter) (*DatabaseMetrics, error) {
	dm := &DatabaseMetrics{}

	var err error

	// Buckets: 1ms .. 10s
	dm.queryDuration, err = meter.Float64Histogram(
		"db.client.query.duration",
		metric.WithDescription("Duration of database queries by operation and table"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}

	dm.queryErrors, err = meter.Int64Counter(
		"db.client.query.errors",
		metric.WithDescription("Queries that failed; a select matching no rows is not a failure"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	dm.pool, err = meter.Int64ObservableGauge(
		"db.client.connections",
		metric.WithDescription("Pool connections by state (open, idle, in_use, max)"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}

	dm.waitCount, err = meter.Int64ObservableCounter(
		"db.client.connections.wait_count",
		metric.WithDescription("Times a query waited for a free connection"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, err
	}

	dm.waitDuration, err = meter.Float64ObservableCounter(
		"db.client.connections.wait_time",
		metric.WithDescription("Total time spent waiting for a free connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return dm, nil
}

// RegisterDB starts observing the pool of db.
func (dm *DatabaseMetrics) RegisterDB(db *sql.DB, meter metric.Meter) error {
	if dm == nil || dm.pool == nil || db == nil {
		return nil
	}

	state := func(s string) metric.ObserveOption {
		return metric.WithAttributes(attribute.String("state", s))
	}

	_, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := db.Stats()
			o.ObserveInt64(dm.pool, int64(stats.OpenConnections), state("open"))
			o.ObserveInt64(dm.pool, int64(stats.Idle), state("idle"))
			o.ObserveInt64(dm.pool, int64(stats.InUse), state("in_use"))
			o.ObserveInt64(dm.pool, int64(stats.MaxOpenConnections), state("max"))
			o.ObserveInt64(dm.waitCount, stats.WaitCount)
			o.ObserveFloat64(dm.waitDuration, stats.WaitDuration.Seconds())
			return nil
		},
		dm.pool, dm.waitCount, dm.waitDuration,
	)
	return err
}

// RecordQuery records one repository call. sql.ErrNoRows counts as a successful query.
func (dm *DatabaseMetrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration, err error) {
	if dm == nil || dm.queryDuration == nil {
		return
	}

	failed := err != nil && !errors.Is(err, sql.ErrNoRows)
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("table", table),
		attribute.Bool("error", failed),
	)

	dm.queryDuration.Record(ctx, duration.Seconds(), attrs)
	if failed {
		dm.queryErrors.Add(ctx, 1, attrs)
	}
}
