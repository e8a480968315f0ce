package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler executes one task attempt.  A nil return acks the message; an
// error schedules a retry until the task's max retry count is spent.
type Handler func(ctx context.Context, args json.RawMessage) error

// Worker consumes the work queues and dispatches envelopes to registered
// handlers.  Each queue gets its own consumer goroutine with a
// reconnect/backoff loop, so a broker restart never kills the process.
type Worker struct {
	url      string
	pub      *Publisher
	handlers map[string]Handler
}

// NewWorker builds a worker around a handler registry.  The publisher is
// used to schedule retries of failed tasks.
func NewWorker(url string, pub *Publisher, handlers map[string]Handler) *Worker {
	return &Worker{url: url, pub: pub, handlers: handlers}
}

// Run consumes every work queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range QueueNames() {
		wg.Add(1)
		go func(queueName string) {
			defer wg.Done()
			w.consumeQueue(ctx, queueName)
		}(q)
	}
	wg.Wait()
}

// consumeQueue runs the dial/consume loop for one queue, reconnecting with
// capped exponential backoff after broker failures.
func (w *Worker) consumeQueue(ctx context.Context, queueName string) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(w.url)
		if err != nil {
			log.Printf("worker: dial broker for %s failed: %v; retrying in %s", queueName, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := w.consumeLoop(ctx, conn, queueName); err != nil {
			log.Printf("worker: consume loop for %s ended: %v; reconnecting", queueName, err)
		}
		_ = conn.Close()
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Prefetch one task per consumer so the broker's priority ordering
	// actually matters: a deep prefetch buffer would lock in arrival order.
	if err := ch.Qos(1, 0, false); err != nil {
		log.Printf("worker: set QoS on %s failed: %v", queueName, err)
	}

	if err := declareTopology(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			w.handleDelivery(ctx, queueName, d)
		}
	}
}

// handleDelivery runs one task attempt and applies the retry policy.  Every
// outcome acks the original delivery: success, scheduled retry, permanent
// failure and undecodable messages all leave the work queue: a task is
// never redelivered outside its own retry schedule.
func (w *Worker) handleDelivery(ctx context.Context, queueName string, d amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.Printf("worker: %s: discarding undecodable message: %v", queueName, err)
		_ = d.Nack(false, false)
		return
	}

	h, ok := w.handlers[env.Task]
	if !ok {
		log.Printf("worker: %s: no handler for task %s[%s]; discarding", queueName, env.Task, env.ID)
		_ = d.Nack(false, false)
		return
	}

	log.Printf("worker: task %s[%s] started (attempt %d)", env.Task, env.ID, env.Retries+1)
	err := h(ctx, env.Args)
	if err == nil {
		log.Printf("worker: task %s[%s] completed", env.Task, env.ID)
		_ = d.Ack(false)
		return
	}

	spec := Specs[env.Task]
	if env.Retries < spec.MaxRetries {
		env.Retries++
		if rerr := w.pub.Requeue(ctx, env); rerr != nil {
			log.Printf("worker: task %s[%s] retry scheduling failed: %v (original error: %v)", env.Task, env.ID, rerr, err)
		} else {
			log.Printf("worker: task %s[%s] failed: %v; retry %d/%d in %s",
				env.Task, env.ID, err, env.Retries, spec.MaxRetries, spec.RetryDelay)
		}
		_ = d.Ack(false)
		return
	}

	// Retries exhausted: log and drop. Nothing re-queues a permanently
	// failed task.
	log.Printf("worker: task %s[%s] permanently failed after %d retries: %v",
		env.Task, env.ID, spec.MaxRetries, err)
	_ = d.Ack(false)
}

// sleepCtx sleeps for d unless ctx is cancelled first.  Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
