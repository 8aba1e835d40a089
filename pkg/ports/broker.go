package ports

import (
	"context"
	"strconv"
)

// HeaderAttempt carries the delivery attempt counter across republishes.
const HeaderAttempt = "x-attempt"

// Envelope is a message as published to a queue.
type Envelope struct {
	Body []byte
	// Attempt counts previous failed deliveries of the same payload, starting at 0.
	Attempt int
	Headers map[string]string
}

// Delivery is an envelope received from a queue. It must be settled exactly once,
// with Ack or Nack.
type Delivery struct {
	Envelope
	ID    string
	Queue string

	ack  func(ctx context.Context) error
	nack func(ctx context.Context, requeue bool) error
}

// NewDelivery builds a delivery whose Ack calls ack. Adapters use it to hand out messages.
func NewDelivery(id, queue string, env Envelope, ack func(ctx context.Context) error) Delivery {
	return Delivery{Envelope: env, ID: id, Queue: queue, ack: ack}
}

// Ack acknowledges the delivery. Acking a delivery without an ack function is a no-op.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// WithNack returns a copy of d whose Nack calls nack.
func (d Delivery) WithNack(nack func(ctx context.Context, requeue bool) error) Delivery {
	d.nack = nack
	return d
}

// Nack rejects the delivery. With requeue the broker delivers it again, otherwise it is
// dropped. Nacking a delivery without a nack function is a no-op.
func (d Delivery) Nack(ctx context.Context, requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx, requeue)
}

// Broker is the narrow message-queue surface used by the consumer.
type Broker interface {
	// DeclareQueue makes sure the queue exists. Declaring an existing queue is not an error.
	DeclareQueue(ctx context.Context, name string) error

	// Consume returns a channel of deliveries. The channel is closed when ctx is canceled
	// or the underlying connection is lost.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	// Publish enqueues an envelope.
	Publish(ctx context.Context, queue string, env Envelope) error

	Close() error
}

// AttemptFromHeader parses the attempt counter, treating missing or invalid values as 0.
func AttemptFromHeader(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
