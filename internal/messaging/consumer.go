package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"candidate-service/common/metrics"
	"candidate-service/internal/candidate"

	"github.com/nats-io/nats.go"
)

// EventHandler receives one decoded candidate event. key is the Message-Key header.
type EventHandler func(ctx context.Context, key string, event candidate.CreatedEvent) error

type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewConsumer(url string, subject string, logger *slog.Logger, m *metrics.Metrics) (*Consumer, error) {
	nc, err := nats.Connect(url, nats.Name("candidate-watcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Consumer{
		conn:    nc,
		subject: subject,
		logger:  logger,
		metrics: m,
	}, nil
}

// Subscribe registers handle and returns once the server knows about the
// subscription. Messages are delivered one at a time.
func (c *Consumer) Subscribe(ctx context.Context, handle EventHandler) error {
	sub, err := c.conn.Subscribe(c.subject, func(msg *nats.Msg) {
		var event candidate.CreatedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.metrics.Messaging.RecordReceive(ctx, "nats", msg.Subject, err)
			c.logger.Error("failed to unmarshal candidate event", "subject", msg.Subject, "error", err)
			return
		}

		err := handle(ctx, msg.Header.Get(KeyHeader), event)
		c.metrics.Messaging.RecordReceive(ctx, "nats", msg.Subject, err)
		if err != nil {
			c.logger.Error("failed to handle candidate event", "candidate_id", event.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub

	if err := c.conn.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("failed to register subscription: %w", err)
	}

	c.logger.Info("NATS consumer started", "subject", c.subject)
	return nil
}

// Start subscribes and blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context, handle EventHandler) error {
	if err := c.Subscribe(ctx, handle); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (c *Consumer) Close() error {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}
