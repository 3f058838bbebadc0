package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const followUpDueType = "followup.due"

// RabbitMQPublisher sends persistent reminders and waits for the broker to confirm
// each one, so a returned nil means the reminder reached a durable queue.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg FollowUpDueMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	publishing, err := newPublishing(msg, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // channel is per publish

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish reminder for call %d: %w", msg.CallID, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("reminder for call %d not confirmed: %w", msg.CallID, err)
	}
	if !acked {
		return fmt.Errorf("broker refused reminder for call %d on %q", msg.CallID, queue)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// newPublishing encodes msg with the priority of its follow-up.
func newPublishing(msg FollowUpDueMessage, now time.Time) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid follow-up message: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode follow-up message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now.UTC(),
		Type:          followUpDueType,
		AppId:         "relance-engine",
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Priority:      PriorityValue(msg.Priority),
		Body:          body,
	}, nil
}
