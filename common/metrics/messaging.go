package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MessagingMetrics struct {
	messagesPublished metric.Int64Counter
	publishErrors     metric.Int64Counter
	publishDuration   metric.Float64Histogram
	messagesReceived  metric.Int64Counter
	receiveErrors     metric.Int64Counter
}

func NewMessagingMetrics(meter metric.Meter) (*MessagingMetrics, error) {
	mm := &MessagingMetrics{}

	var err error

	mm.messagesPublished, err = meter.Int64Counter(
		"messaging.messages.published",
		metric.WithDescription("Total number of messages published"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	mm.publishErrors, err = meter.Int64Counter(
		"messaging.publish.errors",
		metric.WithDescription("Total number of failed publishes"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 100µs .. 1s
	mm.publishDuration, err = meter.Float64Histogram(
		"messaging.message.publish_duration",
		metric.WithDescription("Time spent publishing a message"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	mm.messagesReceived, err = meter.Int64Counter(
		"messaging.messages.received",
		metric.WithDescription("Total number of messages consumed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	mm.receiveErrors, err = meter.Int64Counter(
		"messaging.receive.errors",
		metric.WithDescription("Messages that could not be decoded or handled"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// RecordPublish records one publish attempt on a subject (NATS) or topic (Kafka).
func (mm *MessagingMetrics) RecordPublish(ctx context.Context, broker, destination string, duration time.Duration, err error) {
	if mm == nil || mm.messagesPublished == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("broker", broker),
		attribute.String("destination", destination),
	)

	mm.publishDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		mm.publishErrors.Add(ctx, 1, attrs)
		return
	}
	mm.messagesPublished.Add(ctx, 1, attrs)
}

func (mm *MessagingMetrics) RecordReceive(ctx context.Context, broker, source string, err error) {
	if mm == nil || mm.messagesReceived == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("broker", broker),
		attribute.String("destination", source),
	)

	if err != nil {
		mm.receiveErrors.Add(ctx, 1, attrs)
		return
	}
	mm.messagesReceived.Add(ctx, 1, attrs)
}
