package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const (
	fieldBody    = "body"
	fieldAttempt = "attempt"
	headerPrefix = "h:"
)

// Broker implements ports.Broker on Redis Streams. Each queue is a stream read through
// one consumer group, so a message is delivered to a single consumer and stays pending
// until acknowledged.
type Broker struct {
	client   *backend.Client
	group    string
	consumer string
	prefix   string
	block    time.Duration
	logger   *slog.Logger
}

// BrokerOption configures the Broker.
type BrokerOption func(*Broker)

// WithGroup sets the consumer group and consumer name.
func WithGroup(group, consumer string) BrokerOption {
	return func(b *Broker) {
		b.group = group
		b.consumer = consumer
	}
}

// WithStreamPrefix namespaces stream keys.
func WithStreamPrefix(prefix string) BrokerOption {
	return func(b *Broker) { b.prefix = prefix }
}

// WithBlock sets how long each read waits for new entries.
func WithBlock(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithBrokerLogger sets the structured logger.
func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a Streams broker on an existing client.
func NewBroker(client *backend.Client, opts ...BrokerOption) *Broker {
	b := &Broker{
		client:   client,
		group:    "triage",
		consumer: "triage-1",
		prefix:   "triage:queue:",
		block:    time.Second,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) stream(queue string) string { return b.prefix + queue }

// DeclareQueue creates the stream and its consumer group. Existing groups are kept.
func (b *Broker) DeclareQueue(ctx context.Context, name string) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream(name), b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return &domain.BrokerConnectionError{Broker: "redis", Err: err}
	}
	return nil
}

// Publish appends an envelope to the stream.
func (b *Broker) Publish(ctx context.Context, queue string, env ports.Envelope) error {
	values := map[string]any{
		fieldBody:    env.Body,
		fieldAttempt: strconv.Itoa(env.Attempt),
	}
	for k, v := range env.Headers {
		values[headerPrefix+k] = v
	}
	err := b.client.XAdd(ctx, &backend.XAddArgs{Stream: b.stream(queue), Values: values}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Consume first replays entries this consumer received earlier but never acknowledged,
// then reads new entries for the group. The channel closes when ctx is done or a read
// fails for any reason other than the block timing out.
func (b *Broker) Consume(ctx context.Context, queue string) (<-chan ports.Delivery, error) {
	stream := b.stream(queue)
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, &domain.BrokerConnectionError{Broker: "redis", Err: err}
	}

	out := make(chan ports.Delivery)
	go func() {
		defer close(out)
		// Pending entries are read from after the last one handed out, so an entry still
		// being processed is not replayed twice; ">" switches to new entries.
		cursor := "0"
		for ctx.Err() == nil {
			args := &backend.XReadGroupArgs{
				Group:    b.group,
				Consumer: b.consumer,
				Streams:  []string{stream, cursor},
				Count:    1,
				Block:    b.block,
			}
			if cursor != ">" {
				args.Block = -1
			}
			res, err := b.client.XReadGroup(ctx, args).Result()
			if errors.Is(err, backend.Nil) {
				cursor = ">"
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Warn("stream read failed", "stream", stream, "err", err)
				}
				return
			}
			read := 0
			for _, s := range res {
				for _, msg := range s.Messages {
					read++
					if cursor != ">" {
						cursor = msg.ID
					}
					select {
					case out <- b.delivery(queue, stream, msg):
					case <-ctx.Done():
						return
					}
				}
			}
			if read == 0 && cursor != ">" {
				cursor = ">"
			}
		}
	}()
	return out, nil
}

func (b *Broker) delivery(queue, stream string, msg backend.XMessage) ports.Delivery {
	env := ports.Envelope{Headers: map[string]string{}}
	for k, v := range msg.Values {
		s := fmt.Sprint(v)
		switch {
		case k == fieldBody:
			env.Body = []byte(s)
		case k == fieldAttempt:
			env.Attempt = ports.AttemptFromHeader(s)
		case strings.HasPrefix(k, headerPrefix):
			env.Headers[strings.TrimPrefix(k, headerPrefix)] = s
		}
	}
	id := msg.ID
	return ports.NewDelivery(id, queue, env, func(ctx context.Context) error {
		return b.client.XAck(ctx, stream, b.group, id).Err()
	}).WithNack(func(ctx context.Context, requeue bool) error {
		return b.nack(ctx, stream, id, msg.Values, requeue)
	})
}

// nack settles an entry. With requeue a copy goes to the end of the stream in the same
// transaction, so it is delivered again without waiting for a restart.
func (b *Broker) nack(ctx context.Context, stream, id string, values map[string]any, requeue bool) error {
	_, err := b.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		if requeue {
			pipe.XAdd(ctx, &backend.XAddArgs{Stream: stream, Values: values})
		}
		pipe.XAck(ctx, stream, b.group, id)
		return nil
	})
	return err
}

// Pending returns the number of delivered but unacknowledged entries of a queue.
func (b *Broker) Pending(ctx context.Context, queue string) (int64, error) {
	res, err := b.client.XPending(ctx, b.stream(queue), b.group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Close is a no-op: the client belongs to the caller, who may share it with a Store.
func (b *Broker) Close() error {
	return nil
}
