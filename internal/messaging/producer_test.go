package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"candidate-service/common/logger"
	"candidate-service/common/metrics"
	"candidate-service/internal/candidate"
	"candidate-service/internal/messaging"
	"candidate-service/testing/testnats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Shared(t *testing.T) {
	natsContainer := testnats.SetupSharedNATS(t)
	defer natsContainer.Cleanup(t)

	const subject = "candidates.created"

	producer, err := messaging.NewProducer(natsContainer.URL, subject, logger.NewDiscard(), metrics.NewMock())
	require.NoError(t, err)
	defer producer.Close()

	t.Run("PublishesCandidateCreated", func(t *testing.T) {
		sub := natsContainer.SubscribeSync(t, subject)

		url := "/uploads/1700000000000-abc-cv.pdf"
		event := candidate.CreatedEvent{
			ID:        42,
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Lovelace",
			CVURL:     &url,
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		require.NoError(t, producer.Publish(context.Background(), "42", event))

		msg := testnats.NextMessage(t, sub)
		assert.Equal(t, "42", msg.Header.Get(messaging.KeyHeader))

		var got candidate.CreatedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, event.Email, got.Email)
		assert.Equal(t, url, *got.CVURL)
		assert.True(t, event.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("NullCVURL", func(t *testing.T) {
		sub := natsContainer.SubscribeSync(t, subject)

		require.NoError(t, producer.Publish(context.Background(), "7", candidate.CreatedEvent{ID: 7, Email: "a@b.co"}))

		msg := testnats.NextMessage(t, sub)
		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Data, &raw))
		assert.Contains(t, raw, "cvUrl")
		assert.Nil(t, raw["cvUrl"])
	})

	t.Run("ConsumerDecodesEvents", func(t *testing.T) {
		consumer, err := messaging.NewConsumer(natsContainer.URL, subject, logger.NewDiscard(), metrics.NewMock())
		require.NoError(t, err)
		defer consumer.Close()

		type received struct {
			key   string
			event candidate.CreatedEvent
		}
		got := make(chan received, 1)
		require.NoError(t, consumer.Subscribe(context.Background(), func(_ context.Context, key string, event candidate.CreatedEvent) error {
			got <- received{key: key, event: event}
			return nil
		}))

		require.NoError(t, producer.Publish(context.Background(), "7", candidate.CreatedEvent{
			ID:        7,
			Email:     "grace@example.com",
			FirstName: "Grace",
			LastName:  "Hopper",
		}))

		select {
		case r := <-got:
			assert.Equal(t, "7", r.key)
			assert.Equal(t, 7, r.event.ID)
			assert.Equal(t, "grace@example.com", r.event.Email)
			assert.Nil(t, r.event.CVURL)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not receive the event")
		}
	})

	t.Run("ConsumerStartStopsOnCancel", func(t *testing.T) {
		consumer, err := messaging.NewConsumer(natsContainer.URL, subject, logger.NewDiscard(), metrics.NewMock())
		require.NoError(t, err)
		defer consumer.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- consumer.Start(ctx, func(context.Context, string, candidate.CreatedEvent) error { return nil })
		}()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Start did not return after cancel")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, producer.Ping(context.Background()))
	})

	t.Run("UnmarshalableValue", func(t *testing.T) {
		err := producer.Publish(context.Background(), "x", map[string]interface{}{"ch": make(chan int)})
		assert.Error(t, err)
	})
}

func TestNewProducer_Unreachable(t *testing.T) {
	_, err := messaging.NewProducer("nats://127.0.0.1:1", "x", logger.NewDiscard(), metrics.NewMock())
	assert.Error(t, err)
}
