// Package consumer implements the queue consumer that feeds inbound messages to the
// workflow engine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
)

const (
	DefaultMaxAttempts    = 3
	DefaultPublishTimeout = 5 * time.Second
	DeadLetterSuffix   = ".dead"
	ReplySuffix        = ".replies"

	// HeaderError carries the last failure of a retried or dead-lettered message.
	HeaderError = "x-error"
)

// Delivery outcomes reported to the Observer.
const (
	ResultOK      = "ok"
	ResultRetried  = "retried"
	ResultDead     = "dead"
	ResultRequeued = "requeued"
	ResultDropped  = "dropped"
	ResultFailed   = "failed"
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, in domain.Inbound) (*domain.Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, in domain.Inbound) (*domain.Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, in domain.Inbound) (*domain.Outcome, error) {
	return f(ctx, in)
}

// Observer receives one call per processed delivery.
type Observer interface {
	ObserveDelivery(queue, result string, elapsed time.Duration)
}

// Consumer pulls messages off a queue one at a time and runs them through a Handler.
type Consumer struct {
	broker         ports.Broker
	maxAttempts    int
	replies        bool
	publishTimeout time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
	observer    Observer
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMaxAttempts bounds deliveries of the same payload before it is dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithReplies publishes each successful outcome to "<queue>.replies".
func WithReplies(enabled bool) Option {
	return func(c *Consumer) { c.replies = enabled }
}

// WithPublishTimeout bounds each reply, retry and dead-letter publish, so a queue
// nobody drains cannot stall the consumer.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// WithBackoff sets the reconnect delay range.
func WithBackoff(base, limit time.Duration) Option {
	return func(c *Consumer) {
		if base > 0 {
			c.backoffBase = base
		}
		if limit >= base {
			c.backoffMax = limit
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver reports delivery outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(c *Consumer) { c.observer = o }
}

// New creates a consumer on broker.
func New(broker ports.Broker, opts ...Option) *Consumer {
	c := &Consumer{
		broker:         broker,
		maxAttempts:    DefaultMaxAttempts,
		publishTimeout: DefaultPublishTimeout,
		backoffBase:    500 * time.Millisecond,
		backoffMax:     30 * time.Second,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes queue until ctx is canceled. It returns a *domain.BrokerConnectionError if
// the queue cannot be declared or consumed at startup; later disconnects are retried with
// capped exponential backoff. A clean shutdown returns nil.
func (c *Consumer) Run(ctx context.Context, queue string, h Handler) error {
	deliveries, err := c.subscribe(ctx, queue)
	if err != nil {
		return asConnectionError(err)
	}
	c.logger.Info("consumer started", "queue", queue, "max_attempts", c.maxAttempts)

	for {
		for d := range deliveries {
			c.process(ctx, queue, d, h)
		}
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped", "queue", queue)
			return nil
		}

		c.logger.Warn("delivery stream closed, reconnecting", "queue", queue)
		if deliveries, err = c.reconnect(ctx, queue); err != nil {
			return nil // only fails when ctx is done
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context, queue string) (<-chan ports.Delivery, error) {
	for _, name := range c.queues(queue) {
		if err := c.broker.DeclareQueue(ctx, name); err != nil {
			return nil, fmt.Errorf("declare %s: %w", name, err)
		}
	}
	return c.broker.Consume(ctx, queue)
}

func (c *Consumer) queues(queue string) []string {
	names := []string{queue, queue + DeadLetterSuffix}
	if c.replies {
		names = append(names, queue+ReplySuffix)
	}
	return names
}

func (c *Consumer) reconnect(ctx context.Context, queue string) (<-chan ports.Delivery, error) {
	for attempt := 0; ; attempt++ {
		delay := c.backoff(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		deliveries, err := c.subscribe(ctx, queue)
		if err == nil {
			c.logger.Info("consumer reconnected", "queue", queue, "attempts", attempt+1)
			return deliveries, nil
		}
		c.logger.Warn("reconnect failed", "queue", queue, "attempt", attempt+1, "next_delay", c.backoff(attempt+1), "err", err)
	}
}

// backoff doubles from backoffBase up to backoffMax.
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 0; i < attempt && d < c.backoffMax; i++ {
		d *= 2
	}
	return min(d, c.backoffMax)
}

func (c *Consumer) process(ctx context.Context, queue string, d ports.Delivery, h Handler) {
	started := time.Now()
	result := ResultOK
	defer func() {
		if c.observer != nil {
			c.observer.ObserveDelivery(queue, result, time.Since(started))
		}
	}()

	in, err := Decode(d.Body)
	var out *domain.Outcome
	if err == nil {
		out, err = c.handle(ctx, h, in)
	}

	// Acks and republishes must go through even while shutting down; each publish is
	// still bounded by publishTimeout.
	bg := context.WithoutCancel(ctx)
	if err == nil {
		c.logger.Info("message handled", "queue", queue, "id", d.ID, "session", out.SessionID, "sender", out.Sender, "decision", out.Decision.String(), "steps", out.Steps)
		if c.replies {
			c.reply(bg, queue, out)
		}
		c.ack(bg, d)
		return
	}

	result = c.fail(bg, queue, d, err)
}

// handle runs h, turning a panic into an error.
func (c *Consumer) handle(ctx context.Context, h Handler, in domain.Inbound) (out *domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	out, err = h.Handle(ctx, in)
	if err == nil && out == nil {
		err = errors.New("handler returned no outcome")
	}
	return out, err
}

// fail republishes the payload for another attempt or dead-letters it, then acks the
// original. If a retry cannot be published the original is nacked with requeue so the
// broker delivers it again; if the dead-letter queue refuses it, it is dropped.
func (c *Consumer) fail(ctx context.Context, queue string, d ports.Delivery, cause error) string {
	next := d.Attempt + 1
	target, result := queue, ResultRetried
	if isPermanent(cause) || next >= c.maxAttempts {
		target, result = queue+DeadLetterSuffix, ResultDead
	}

	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderError] = cause.Error()

	env := ports.Envelope{Body: d.Body, Attempt: next, Headers: headers}
	if err := c.publish(ctx, target, env); err != nil {
		requeue := result == ResultRetried
		c.logger.Error("failed to republish message", "queue", target, "id", d.ID, "requeue", requeue, "err", err, "cause", cause)
		if err := d.Nack(ctx, requeue); err != nil {
			c.logger.Error("failed to nack delivery", "id", d.ID, "err", err)
			return ResultFailed
		}
		if requeue {
			return ResultRequeued
		}
		return ResultDropped
	}

	c.logger.Warn("message failed", "queue", queue, "id", d.ID, "attempt", next, "routed_to", target, "err", cause)
	c.ack(ctx, d)
	return result
}

func (c *Consumer) reply(ctx context.Context, queue string, out *domain.Outcome) {
	body, err := json.Marshal(out)
	if err != nil {
		c.logger.Error("failed to encode reply", "err", err)
		return
	}
	if err := c.publish(ctx, queue+ReplySuffix, ports.Envelope{Body: body}); err != nil {
		c.logger.Error("failed to publish reply", "queue", queue+ReplySuffix, "err", err)
	}
}

func (c *Consumer) publish(ctx context.Context, queue string, env ports.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()
	return c.broker.Publish(ctx, queue, env)
}

func (c *Consumer) ack(ctx context.Context, d ports.Delivery) {
	if err := d.Ack(ctx); err != nil {
		c.logger.Error("failed to ack delivery", "id", d.ID, "err", err)
	}
}

func isPermanent(err error) bool {
	return domain.IsPermanent(err) || errors.Is(err, ErrMalformedPayload)
}

func asConnectionError(err error) error {
	var connErr *domain.BrokerConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &domain.BrokerConnectionError{Broker: "queue", Err: err}
}
