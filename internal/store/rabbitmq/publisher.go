package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// retryDelay is how long a failed job sits on the retry queue before it is
// dead-lettered back to the main queue for another attempt.
const retryDelay = 30 * time.Second

// Queue topology, shared by publisher and worker:
//
//	<queue>        main queue; worker consumes here. Nack(requeue=false)
//	               dead-letters to <queue>.retry.
//	<queue>.retry  parking lot with a message TTL; expiry dead-letters the
//	               message back to <queue>.
//	<queue>.dlq    terminal queue; the worker moves a job here explicitly
//	               once its attempts are exhausted.

func mainQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue + ".retry",
	}
}

func retryQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             int32(retryDelay / time.Millisecond),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// DeclareTopology declares the three queues. Both ends call it so startup
// order does not matter; declarations are idempotent as long as the args
// match.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue+".dlq", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue+".retry", true, false, false, false, retryQueueArgs(queue)); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, mainQueueArgs(queue)); err != nil {
		return err
	}
	return nil
}

// DeathCount returns how many times the message has been dead-lettered off
// the given queue, read from the broker-maintained x-death header. Zero for
// a first delivery.
func DeathCount(headers amqp.Table, queue string) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := entry["queue"].(string); q != queue {
			continue
		}
		if n, ok := entry["count"].(int64); ok {
			return n
		}
	}
	return 0
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

type JobMessage struct {
	JobID string `json:"job_id"`
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishExportJob enqueues an export job id for the worker.
func (p *Publisher) PublishExportJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
