package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// redeliveryPause slows down a message that already failed once, so a broken
// dependency does not turn requeues into a hot loop.
const redeliveryPause = 2 * time.Second

type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	case settleDeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// RabbitMQConsumer hands reminders to a handler, prefetch at a time. Payloads that
// cannot be decoded go to the dead-letter queue; handler errors are requeued.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
	pause    func(ctx context.Context, d time.Duration) error
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: max(prefetch, 1),
		logger:   logger,
		pause:    sleepContext,
	}
}

// Consume blocks until ctx ends, resubscribing with backoff whenever the channel
// or connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := initialBackoff
	for {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			wait = initialBackoff
			continue
		}

		c.logger.Warn("reminder subscription lost", zap.String("queue", queue), zap.Duration("retryIn", wait), zap.Error(err))
		if sleepContext(ctx, wait) != nil {
			return nil
		}
		wait = nextBackoff(wait)
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // closed on resubscribe

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %q closed", queue)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDelivery(d.Body)
	if err != nil {
		c.logger.Warn("dead-lettering undecodable reminder",
			zap.String("messageId", d.MessageId),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err),
		)
		return settle(d, settleDeadLetter)
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.Warn("requeueing reminder",
			zap.Int64("callId", msg.CallID),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err),
		)
		if d.Redelivered {
			if pauseErr := c.pause(ctx, redeliveryPause); pauseErr != nil {
				// shutting down: the broker requeues unacked deliveries on close
				return nil
			}
		}
		return settle(d, settleRequeue)
	}

	return settle(d, settleAck)
}

func decodeDelivery(body []byte) (FollowUpDueMessage, error) {
	var msg FollowUpDueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return FollowUpDueMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return FollowUpDueMessage{}, err
	}
	return msg, nil
}

func settle(d amqp.Delivery, s settlement) error {
	var err error
	switch s {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	case settleDeadLetter:
		err = d.Reject(false)
	default:
		return fmt.Errorf("unknown settlement %d", s)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery %d: %w", s, d.DeliveryTag, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
