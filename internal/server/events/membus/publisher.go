package membus

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authsync/internal/server/events"
)

// Publisher sends AccountCreated events to a Broker queue. Fail makes every
// following publish return the given error, which lets tests exercise the
// best-effort path.
type Publisher struct {
	broker *Broker
	queue  string

	mu        sync.Mutex
	connected bool
	failWith  error
}

func NewPublisher(broker *Broker, queue string) *Publisher {
	return &Publisher{broker: broker, queue: queue}
}

func (p *Publisher) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broker.Declare(p.queue)
	p.connected = true
	return nil
}

func (p *Publisher) PublishCreated(ctx context.Context, event events.AccountCreated) error {
	body, err := events.Encode(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return p.failWith
	}
	if !p.connected {
		return events.ErrNotConnected
	}
	return p.broker.Send(ctx, p.queue, body)
}

// Fail sets the error returned by later publishes; nil restores normal operation.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}
