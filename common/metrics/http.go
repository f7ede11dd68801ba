package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics covers latency, traffic, errors and saturation of the HTTP server.
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	errorsTotal     metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	hm := &HTTPMetrics{}

	var err error

	hm.requestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, err
	}

	hm.requestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	hm.errorsTotal, err = meter.Int64Counter(
		"http.server.errors",
		metric.WithDescription("HTTP responses with status >= 500"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	hm.activeRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return hm, nil
}

func (hm *HTTPMetrics) RequestStarted(ctx context.Context) {
	if hm == nil || hm.activeRequests == nil {
		return
	}
	hm.activeRequests.Add(ctx, 1)
}

// RecordRequest records a finished request; route is the matched pattern, not the raw path.
func (hm *HTTPMetrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if hm == nil || hm.requestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)

	hm.activeRequests.Add(ctx, -1)
	hm.requestsTotal.Add(ctx, 1, attrs)
	hm.requestDuration.Record(ctx, duration.Seconds(), attrs)
	if status >= 500 {
		hm.errorsTotal.Add(ctx, 1, attrs)
	}
}
