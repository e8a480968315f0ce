package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// maxPriority is the per-queue priority ceiling.  Task priorities in Specs
// all fit below it.
const maxPriority = 10

// Publisher submits task envelopes to RabbitMQ.  It holds one connection
// and channel for the life of the process and redials lazily when the
// broker drops them.  Enqueue is fire-and-forget from the caller's point
// of view: request handlers log a failed enqueue and carry on.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares every work queue together with
// the retry queues.  Declaration is idempotent, so publisher and worker
// can start in any order.
func NewPublisher(url string) (*Publisher, error) {
	p := &Publisher{url: url}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect (re)establishes the connection/channel and declares the queue
// topology. Caller must hold p.mu.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// declareTopology declares each work queue (durable, priority-enabled) and
// one retry queue per distinct (queue, delay) pair.  Retry queues have no
// consumers; messages published there with a per-message expiration
// dead-letter back into the work queue once the retry delay elapses.
// RabbitMQ only honors the expiration at the head of a queue, which is why
// tasks with different delays never share a retry queue.
func declareTopology(ch *amqp.Channel) error {
	for _, q := range QueueNames() {
		if _, err := ch.QueueDeclare(q, true, false, false, false, amqp.Table{
			"x-max-priority": int32(maxPriority),
		}); err != nil {
			return fmt.Errorf("rabbitmq: declare %s: %w", q, err)
		}
	}
	for retry, work := range RetryQueues() {
		if _, err := ch.QueueDeclare(retry, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": work,
		}); err != nil {
			return fmt.Errorf("rabbitmq: declare %s: %w", retry, err)
		}
	}
	return nil
}

// Enqueue submits a named task with the given arguments.  Queue, priority
// and retry policy come from the task's Spec; unknown task names are
// programming errors and fail immediately.
func (p *Publisher) Enqueue(ctx context.Context, task string, args any) error {
	spec, ok := Specs[task]
	if !ok {
		return fmt.Errorf("queue: unknown task %q", task)
	}

	var raw json.RawMessage
	if args != nil {
		bs, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("queue: marshal args for %s: %w", task, err)
		}
		raw = bs
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Task:       task,
		Args:       raw,
		EnqueuedAt: time.Now().UTC(),
	}
	return p.publish(ctx, spec.Queue, env, spec.Priority, 0)
}

// Requeue schedules a failed envelope for another attempt after the task's
// fixed retry delay, with the retry counter already incremented by the
// caller.  The message goes to the task's own retry queue and dead-letters
// back to the work queue when the delay expires.
func (p *Publisher) Requeue(ctx context.Context, env Envelope) error {
	spec, ok := Specs[env.Task]
	if !ok {
		return fmt.Errorf("queue: unknown task %q", env.Task)
	}
	return p.publish(ctx, spec.RetryQueue(), env, spec.Priority, spec.RetryDelay)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, env Envelope, priority uint8, expiration time.Duration) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // survive broker restarts
		Timestamp:    time.Now().UTC(),
		MessageId:    env.ID,
		Priority:     priority,
		Body:         body,
	}
	if expiration > 0 {
		pub.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			log.Printf("rabbitmq: reconnect failed: %v", err)
			return err
		}
	}
	if err := p.ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish %s to %s failed: %v", env.Task, routingKey, err)
		// One reconnect attempt; the broker may have dropped the channel.
		if rerr := p.connect(); rerr != nil {
			return err
		}
		return p.ch.PublishWithContext(ctx, "", routingKey, false, false, pub)
	}
	return nil
}

// Close releases the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
