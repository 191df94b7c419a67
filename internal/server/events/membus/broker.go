// Package membus is an in-process message broker with durable-queue
// semantics (declare, ack, nack with requeue). It backs tests and
// single-process deployments without Kafka.
package membus

import (
	"context"
	"fmt"
	"sync"
)

type message struct {
	id      uint64
	body    []byte
	attempt int
}

type queue struct {
	ready    []message
	inflight map[uint64]message
	signal   chan struct{}
}

// Broker holds named queues. Safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	queues map[string]*queue
	nextID uint64
}

func NewBroker() *Broker {
	return &Broker{queues: make(map[string]*queue)}
}

// Declare creates the queue if it does not exist yet.
func (b *Broker) Declare(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declareLocked(name)
}

func (b *Broker) declareLocked(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{inflight: make(map[uint64]message), signal: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q
}

// Send appends body to a declared queue.
func (b *Broker) Send(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return fmt.Errorf("queue %q is not declared", name)
	}
	b.nextID++
	q.ready = append(q.ready, message{id: b.nextID, body: append([]byte(nil), body...), attempt: 1})
	notify(q)
	return nil
}

// Ready returns copies of the bodies waiting in the queue, oldest first.
func (b *Broker) Ready(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(q.ready))
	for _, m := range q.ready {
		out = append(out, append([]byte(nil), m.body...))
	}
	return out
}

// Unacked counts messages handed out and not yet acked or nacked.
func (b *Broker) Unacked(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return len(q.inflight)
	}
	return 0
}

func (b *Broker) fetch(ctx context.Context, name string) (message, error) {
	for {
		b.mu.Lock()
		q, ok := b.queues[name]
		if !ok {
			b.mu.Unlock()
			return message{}, fmt.Errorf("queue %q is not declared", name)
		}
		if len(q.ready) > 0 {
			m := q.ready[0]
			q.ready = q.ready[1:]
			q.inflight[m.id] = m
			if len(q.ready) > 0 {
				notify(q)
			}
			b.mu.Unlock()
			return m, nil
		}
		signal := q.signal
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return message{}, ctx.Err()
		case <-signal:
		}
	}
}

func (b *Broker) settle(name string, id uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return fmt.Errorf("queue %q is not declared", name)
	}
	m, ok := q.inflight[id]
	if !ok {
		return fmt.Errorf("message %d is not in flight", id)
	}
	delete(q.inflight, id)
	if requeue {
		m.attempt++
		q.ready = append(q.ready, m)
		notify(q)
	}
	return nil
}

func notify(q *queue) {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
