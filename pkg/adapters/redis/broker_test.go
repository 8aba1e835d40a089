package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/triage/pkg/adapters/redis"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker_DeclareIsIdempotent(t *testing.T) {
	_, client := newClient(t)
	b := redis.NewBroker(client)
	ctx := context.Background()

	require.NoError(t, b.DeclareQueue(ctx, "message_queue"))
	require.NoError(t, b.Publish(ctx, "message_queue", ports.Envelope{Body: []byte("kept")}))
	require.NoError(t, b.DeclareQueue(ctx, "message_queue"))

	n, err := client.XLen(ctx, "triage:queue:message_queue").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisBroker_PublishConsumeAck(t *testing.T) {
	_, client := newClient(t)
	b := redis.NewBroker(client, redis.WithBlock(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.DeclareQueue(ctx, "q"))
	require.NoError(t, b.Publish(ctx, "q", ports.Envelope{
		Body:    []byte(`{"message":"hi"}`),
		Attempt: 1,
		Headers: map[string]string{"x-origin": "test"},
	}))

	deliveries, err := b.Consume(ctx, "q")
	require.NoError(t, err)

	var d ports.Delivery
	select {
	case d = <-deliveries:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}

	assert.Equal(t, `{"message":"hi"}`, string(d.Body))
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, "test", d.Headers["x-origin"])

	pending, err := b.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	require.NoError(t, d.Ack(ctx))
	pending, err = b.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func receiveOne(t *testing.T, deliveries <-chan ports.Delivery) ports.Delivery {
	t.Helper()
	select {
	case d, ok := <-deliveries:
		require.True(t, ok, "delivery stream closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
		return ports.Delivery{}
	}
}

func TestRedisBroker_RedeliversUnackedAfterRestart(t *testing.T) {
	_, client := newClient(t)
	b := redis.NewBroker(client, redis.WithBlock(50*time.Millisecond))
	require.NoError(t, b.DeclareQueue(context.Background(), "q"))
	require.NoError(t, b.Publish(context.Background(), "q", ports.Envelope{Body: []byte("first")}))
	require.NoError(t, b.Publish(context.Background(), "q", ports.Envelope{Body: []byte("second")}))

	// A consumer takes one entry and stops without settling it.
	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := b.Consume(ctx, "q")
	require.NoError(t, err)
	lost := receiveOne(t, deliveries)
	assert.Equal(t, "first", string(lost.Body))
	cancel()
	for range deliveries {
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	deliveries, err = b.Consume(ctx, "q")
	require.NoError(t, err)

	again := receiveOne(t, deliveries)
	assert.Equal(t, lost.ID, again.ID)
	assert.Equal(t, "first", string(again.Body))
	require.NoError(t, again.Ack(ctx))

	next := receiveOne(t, deliveries)
	assert.Equal(t, "second", string(next.Body))
	require.NoError(t, next.Ack(ctx))

	pending, err := b.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestRedisBroker_Nack(t *testing.T) {
	_, client := newClient(t)
	b := redis.NewBroker(client, redis.WithBlock(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.DeclareQueue(ctx, "q"))
	require.NoError(t, b.Publish(ctx, "q", ports.Envelope{Body: []byte("retry me"), Attempt: 1}))

	deliveries, err := b.Consume(ctx, "q")
	require.NoError(t, err)

	first := receiveOne(t, deliveries)
	require.NoError(t, first.Nack(ctx, true))

	again := receiveOne(t, deliveries)
	assert.NotEqual(t, first.ID, again.ID)
	assert.Equal(t, "retry me", string(again.Body))
	assert.Equal(t, 1, again.Attempt)

	require.NoError(t, again.Nack(ctx, false))
	pending, err := b.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	n, err := client.XLen(ctx, "triage:queue:q").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "requeue appends a copy; the original stays in the stream acknowledged")
}
