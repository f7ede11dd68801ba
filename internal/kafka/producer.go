package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"candidate-service/common/metrics"

	"github.com/IBM/sarama"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "candidate-service"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	return config
}

func NewProducer(brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "topic", topic)
	return NewProducerWith(producer, topic, logger, m), nil
}

// NewProducerWith wraps an existing sync producer, e.g. sarama/mocks in tests.
func NewProducerWith(producer sarama.SyncProducer, topic string, logger *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  m,
	}
}

// Publish sends value as JSON keyed by key, so events for one candidate share a partition.
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	err := p.publish(ctx, key, value)
	p.metrics.Messaging.RecordPublish(ctx, "kafka", p.topic, time.Since(start), err)
	return err
}

func (p *Producer) publish(ctx context.Context, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(valueBytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to kafka", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to kafka", "topic", p.topic, "partition", partition, "offset", offset, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
