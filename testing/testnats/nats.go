// Package testnats runs one NATS testcontainer per test package.
package testnats

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultImage = "nats:2.10-alpine"
	clientPort   = "4222/tcp"
	receiveWait  = 5 * time.Second
)

var (
	shared     *NATSContainer
	sharedOnce sync.Once
)

type NATSContainer struct {
	Container testcontainers.Container
	URL       string
}

// SetupSharedNATS starts the package's NATS server on first use. TESTNATS_IMAGE
// overrides the image. As with testdb, call Cleanup once from the top-level test
// and do not run sharing tests in parallel.
func SetupSharedNATS(t *testing.T) *NATSContainer {
	t.Helper()

	sharedOnce.Do(func() {
		ctx := context.Background()

		image := os.Getenv("TESTNATS_IMAGE")
		if image == "" {
			image = defaultImage
		}

		container, err := testcontainers.Run(ctx, image,
			testcontainers.WithExposedPorts(clientPort),
			testcontainers.WithWaitStrategy(wait.ForListeningPort(clientPort)),
		)
		require.NoError(t, err, "failed to start nats container")

		url, err := container.PortEndpoint(ctx, clientPort, "nats")
		require.NoError(t, err)

		shared = &NATSContainer{Container: container, URL: url}
	})

	require.NotNil(t, shared, "shared nats container failed to start")
	return shared
}

func (nc *NATSContainer) Cleanup(t *testing.T) {
	t.Helper()

	if nc.Container == nil {
		return
	}
	if err := nc.Container.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate nats container: %s", err)
	}
}

// Connect opens a client connection closed at the end of the test.
func (nc *NATSContainer) Connect(t *testing.T) *nats.Conn {
	t.Helper()

	conn, err := nats.Connect(nc.URL, nats.Name(t.Name()))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

// SubscribeSync subscribes on a dedicated connection and flushes, so anything
// published after it returns is delivered.
func (nc *NATSContainer) SubscribeSync(t *testing.T, subject string) *nats.Subscription {
	t.Helper()

	conn := nc.Connect(t)
	sub, err := conn.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return sub
}

func NextMessage(t *testing.T, sub *nats.Subscription) *nats.Msg {
	t.Helper()

	msg, err := sub.NextMsg(receiveWait)
	require.NoError(t, err, "no message received on %s", sub.Subject)
	return msg
}
