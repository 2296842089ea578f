package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAMQPTransport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping AMQP test in short mode (requires rabbitmq container)")
	}

	teardown, url, err := helper.MustStartRabbitMQContainer()
	require.NoError(t, err)
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("error tearing down rabbitmq container: %v", err)
		}
	}()

	ctx := context.Background()
	conn, err := DialAMQP(ctx, url)
	require.NoError(t, err, "Expected DialAMQP to not return an error")
	defer conn.Close()

	t.Run("Published traces reach the consumer writer", func(t *testing.T) {
		queue := "test.traces." + uuid.NewString()
		store := &memoryWriter{}

		consumer := NewAMQPConsumer(conn, store, queue, testLogger())
		require.NoError(t, consumer.Start(ctx))
		defer consumer.Close()

		logger := NewTraceLogger(NewAMQPPublisher(conn, queue), 1, 8, testLogger())
		trace := testTrace()
		logger.Log(ctx, trace)
		require.NoError(t, logger.Close(ctx))
		assert.Equal(t, int64(1), logger.Stats().Persisted, "Expected trace to be published")

		require.Eventually(t, func() bool { return store.count() == 1 }, 10*time.Second, 50*time.Millisecond)

		store.mu.Lock()
		received := store.traces[0]
		store.mu.Unlock()
		assert.Equal(t, trace.ID, received.ID)
		assert.Equal(t, trace.Query, received.Query)
		assert.Equal(t, trace.Hits, received.Hits)
	})

	t.Run("Starting twice is a no-op", func(t *testing.T) {
		consumer := NewAMQPConsumer(conn, &memoryWriter{}, "test.traces."+uuid.NewString(), testLogger())
		require.NoError(t, consumer.Start(ctx))
		require.NoError(t, consumer.Start(ctx))
		consumer.Close()
	})
}
