package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// AMQPQueue publishes jobs to RabbitMQ. Two durable queues are declared up
// front; routing picks one per job based on priority.
type AMQPQueue struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	standard string
	urgent   string
}

// NewAMQPQueue connects to the broker and declares both job queues.
func NewAMQPQueue(cfg config.QueueConfig) (*AMQPQueue, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	for _, name := range []string{cfg.StandardQueue, cfg.LowLatencyQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	log.Info().
		Str("standard", cfg.StandardQueue).
		Str("urgent", cfg.LowLatencyQueue).
		Msg("connected to amqp broker")

	return &AMQPQueue{
		conn:     conn,
		channel:  ch,
		standard: cfg.StandardQueue,
		urgent:   cfg.LowLatencyQueue,
	}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	routing := q.standard
	if job.Priority >= UrgentPriority {
		routing = q.urgent
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.channel.PublishWithContext(ctx, "", routing, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: job.CorrelationID,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.TaskID, err)
	}

	log.Debug().
		Str("task_id", job.TaskID).
		Str("org_id", job.OrgID).
		Str("queue", routing).
		Msg("job enqueued")
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn.Close()
	}
	return nil
}
