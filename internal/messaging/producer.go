package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"candidate-service/common/metrics"

	"github.com/nats-io/nats.go"
)

// KeyHeader carries the message key, NATS has no native one.
const KeyHeader = "Message-Key"

const flushTimeout = 5 * time.Second

type Producer struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewProducer(url string, subject string, logger *slog.Logger, m *metrics.Metrics) (*Producer, error) {
	nc, err := nats.Connect(url,
		nats.Name("candidate-service"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS producer initialized", "url", url, "subject", subject)

	return &Producer{
		conn:    nc,
		subject: subject,
		logger:  logger,
		metrics: m,
	}, nil
}

// Publish sends value as JSON and waits for the server to acknowledge the flush.
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	err := p.publish(ctx, key, value)
	p.metrics.Messaging.RecordPublish(ctx, "nats", p.subject, time.Since(start), err)
	return err
}

func (p *Producer) publish(ctx context.Context, key string, value interface{}) error {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = valueBytes
	if key != "" {
		msg.Header.Set(KeyHeader, key)
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to NATS", "error", err)
		return err
	}
	if err := p.flush(ctx); err != nil {
		p.logger.ErrorContext(ctx, "failed to flush message to NATS", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject, "key", key)
	return nil
}

// Ping reports whether the connection is usable.
func (p *Producer) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS connection status %s", p.conn.Status())
	}
	return p.flush(ctx)
}

// flush waits for the server round trip. FlushWithContext needs a deadline.
func (p *Producer) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return p.conn.FlushTimeout(flushTimeout)
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *Producer) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
