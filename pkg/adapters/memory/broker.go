package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/google/uuid"
)

// DefaultQueueSize is the buffer of each in-memory queue.
const DefaultQueueSize = 128

// ErrQueueFull is returned by Publish when the queue buffer has no room.
var ErrQueueFull = errors.New("queue is full")

// Broker implements ports.Broker with buffered channels. It is meant for tests and
// single-process runs: messages do not survive a restart.
type Broker struct {
	mu     sync.Mutex
	queues map[string]chan ports.Envelope
	size   int
	closed bool
	done   chan struct{}
}

// NewBroker creates an in-memory broker whose queues hold up to size envelopes.
func NewBroker(size int) *Broker {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Broker{
		queues: make(map[string]chan ports.Envelope),
		size:   size,
		done:   make(chan struct{}),
	}
}

// DeclareQueue creates the queue if it does not exist yet.
func (b *Broker) DeclareQueue(ctx context.Context, name string) error {
	_, err := b.queue(name, true)
	return err
}

// Publish enqueues an envelope. It never waits for room: a full queue fails with
// ErrQueueFull, so a queue nobody reads cannot stall the publisher.
func (b *Broker) Publish(ctx context.Context, queue string, env ports.Envelope) error {
	q, err := b.queue(queue, false)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q <- env:
		return nil
	case <-b.done:
		return domain.ErrQueueClosed
	default:
		return fmt.Errorf("%s: %w", queue, ErrQueueFull)
	}
}

// Consume streams deliveries until ctx is canceled or the broker is closed.
// Acks are no-ops: a delivery leaves the queue when it is received. Nack with requeue
// puts it back.
func (b *Broker) Consume(ctx context.Context, queue string) (<-chan ports.Delivery, error) {
	q, err := b.queue(queue, false)
	if err != nil {
		return nil, err
	}
	out := make(chan ports.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case env := <-q:
				d := ports.NewDelivery(uuid.NewString(), queue, env, nil).
					WithNack(func(_ context.Context, requeue bool) error {
						if requeue {
							b.requeue(q, env)
						}
						return nil
					})
				select {
				case out <- d:
				case <-ctx.Done():
					b.requeue(q, env)
					return
				case <-b.done:
					return
				}
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

// requeue puts env back on q once there is room, unless the broker closes first.
func (b *Broker) requeue(q chan ports.Envelope, env ports.Envelope) {
	select {
	case q <- env:
		return
	default:
	}
	go func() {
		select {
		case q <- env:
		case <-b.done:
		}
	}()
}

// Len returns the number of envelopes waiting in a queue.
func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// Close stops all consumers. Further calls fail with domain.ErrQueueClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *Broker) queue(name string, create bool) (chan ports.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.ErrQueueClosed
	}
	q, ok := b.queues[name]
	if !ok {
		if !create {
			return nil, fmt.Errorf("queue %q is not declared", name)
		}
		q = make(chan ports.Envelope, b.size)
		b.queues[name] = q
	}
	return q, nil
}
