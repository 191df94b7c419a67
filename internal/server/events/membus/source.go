package membus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authsync/internal/server/events"
)

// Source consumes one Broker queue.
type Source struct {
	broker *Broker
	queue  string

	mu       sync.Mutex
	closed   bool
	stop     chan struct{}
	inflight map[uint64]struct{}
}

func NewSource(broker *Broker, queue string) *Source {
	return &Source{
		broker:   broker,
		queue:    queue,
		stop:     make(chan struct{}),
		inflight: make(map[uint64]struct{}),
	}
}

func (s *Source) Declare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.broker.Declare(s.queue)
	return nil
}

func (s *Source) Fetch(ctx context.Context) (events.Delivery, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return events.Delivery{}, events.ErrSourceClosed
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	m, err := s.broker.fetch(ctx, s.queue)
	if err != nil {
		select {
		case <-s.stop:
			return events.Delivery{}, events.ErrSourceClosed
		default:
		}
		return events.Delivery{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = s.broker.settle(s.queue, m.id, true)
		return events.Delivery{}, events.ErrSourceClosed
	}
	s.inflight[m.id] = struct{}{}
	s.mu.Unlock()

	return events.Delivery{Queue: s.queue, Body: m.body, Attempt: m.attempt, Handle: m.id}, nil
}

func (s *Source) Ack(ctx context.Context, d events.Delivery) error {
	return s.settle(d, false)
}

func (s *Source) Nack(ctx context.Context, d events.Delivery, requeue bool) error {
	return s.settle(d, requeue)
}

func (s *Source) settle(d events.Delivery, requeue bool) error {
	id, ok := d.Handle.(uint64)
	if !ok {
		return fmt.Errorf("foreign delivery handle %T", d.Handle)
	}
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
	return s.broker.settle(s.queue, id, requeue)
}

// Close stops pending fetches and hands unsettled messages back to the
// queue, as a broker does when a consumer connection drops.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)

	for id := range s.inflight {
		_ = s.broker.settle(s.queue, id, true)
		delete(s.inflight, id)
	}
	return nil
}
