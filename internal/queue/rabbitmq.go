package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	deadLetterExchange = "relance.dlx"
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
	dialTimeout        = 15 * time.Second
	heartbeat          = 10 * time.Second
)

// queueTopology describes one work queue and the dead-letter queue behind it.
type queueTopology struct {
	Queue      string
	DeadLetter string
	Args       amqp.Table
}

func topologyFor(queue string) queueTopology {
	return queueTopology{
		Queue:      queue,
		DeadLetter: DLQName(queue),
		Args: amqp.Table{
			"x-dead-letter-exchange":    deadLetterExchange,
			"x-dead-letter-routing-key": queue,
			"x-max-priority":            queueMaxPriority,
		},
	}
}

// RabbitMQ shares one broker connection between the publishers and consumers of a
// process. A dropped connection is redialled lazily by the next caller that needs a
// channel.
type RabbitMQ struct {
	url  string
	name string

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewRabbitMQ dials the broker as name, the label shown in the management UI. It
// keeps retrying until dialTimeout elapses or ctx ends.
func NewRabbitMQ(ctx context.Context, url, name string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, name: name}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel with the reminder topology declared on it.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := r.connection(ctx)
		if err != nil {
			return nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			// the connection died between the check and the call; drop it and redial
			lastErr = err
			r.forget(conn)
			continue
		}

		if err := declareTopology(ch, workQueues); err != nil {
			_ = ch.Close()
			return nil, err
		}
		return ch, nil
	}

	return nil, fmt.Errorf("failed to open rabbitmq channel: %w", lastErr)
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	config := amqp.Config{
		Heartbeat:  heartbeat,
		Properties: amqp.NewConnectionProperties(),
	}
	if r.name != "" {
		config.Properties.SetClientConnectionName(r.name)
	}

	wait := initialBackoff
	for {
		conn, dialErr := amqp.DialConfig(r.url, config)
		if dialErr == nil {
			r.conn = conn
			return conn, nil
		}

		if err := sleepContext(ctx, wait); err != nil {
			return nil, fmt.Errorf("rabbitmq dial gave up (last error: %v): %w", dialErr, err)
		}
		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) forget(conn *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == conn {
		r.conn = nil
	}
	if !conn.IsClosed() {
		_ = conn.Close()
	}
}

func declareTopology(ch *amqp.Channel, queues []string) error {
	if err := ch.ExchangeDeclare(deadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", deadLetterExchange, err)
	}

	for _, name := range queues {
		topo := topologyFor(name)

		if _, err := ch.QueueDeclare(topo.DeadLetter, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", topo.DeadLetter, err)
		}
		if err := ch.QueueBind(topo.DeadLetter, topo.Queue, deadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", topo.DeadLetter, err)
		}
		if _, err := ch.QueueDeclare(topo.Queue, true, false, false, false, topo.Args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", topo.Queue, err)
		}
	}

	return nil
}

func nextBackoff(current time.Duration) time.Duration {
	return min(current*2, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
