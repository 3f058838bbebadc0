package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

// Publisher publishes follow-up reminders to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg FollowUpDueMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg FollowUpDueMessage) error

// Consumer consumes follow-up reminders from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// FollowUpsDueQueue carries reminders for follow-ups whose time has come.
	FollowUpsDueQueue = "followups.due"

	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 2
)

var workQueues = []string{FollowUpsDueQueue}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.followups.due.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, name := range workQueues {
		queues = append(queues, DLQName(name))
	}
	return queues
}

// PriorityValue maps a follow-up priority to a RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityP1:
		return 2
	case domain.PriorityNormal:
		return 1
	default:
		return 0
	}
}
