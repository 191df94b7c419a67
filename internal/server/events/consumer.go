package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/dmitrijs2005/authsync/internal/logging"
)

// ErrAlreadyStarted is returned by Start on a running consumer.
var ErrAlreadyStarted = errors.New("consumer already started")

// Handler applies one message body. Returning an error wrapping
// common.ErrMalformedMessage drops the message; any other error requeues it.
type Handler func(ctx context.Context, body []byte) error

// Consumer drains a Source one message at a time on a single background
// goroutine. It owns the Source: Stop closes it.
type Consumer struct {
	source        Source
	handler       Handler
	logger        logging.Logger
	newBackOff    func() backoff.BackOff
	handleTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type ConsumerOption func(*Consumer)

// WithBackOff sets the policy used to pause after a failed message or fetch.
func WithBackOff(f func() backoff.BackOff) ConsumerOption {
	return func(c *Consumer) { c.newBackOff = f }
}

// WithHandleTimeout bounds a single handler call together with its ack.
func WithHandleTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.handleTimeout = d
		}
	}
}

func NewConsumer(source Source, handler Handler, logger logging.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		source:        source,
		handler:       handler,
		logger:        logger.With("module", "event_consumer"),
		newBackOff:    defaultBackOff,
		handleTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// Start declares the queue and launches the consume loop. The loop outlives
// ctx's cancellation; use Stop to end it.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return ErrAlreadyStarted
	}
	if err := c.source.Declare(ctx); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx, c.done)

	c.logger.Info(ctx, "Event consumer started")
	return nil
}

// Stop ends the loop, waits for the in-flight message until ctx is done and
// then closes the source. A message abandoned by an expired ctx was never
// acknowledged and will be delivered again.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if done == nil {
		return c.source.Close()
	}

	cancel()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for in-flight message: %w", ctx.Err())
	}

	c.logger.Info(ctx, "Event consumer stopping")
	return errors.Join(waitErr, c.source.Close())
}

func (c *Consumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := c.newBackOff()
	var held *Delivery
	for {
		var d Delivery
		if held != nil {
			d, held = *held, nil
		} else {
			var err error
			d, err = c.source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
					return
				}
				c.logger.Error(ctx, "Fetch failed", "error", err)
				if !pause(ctx, b.NextBackOff()) {
					return
				}
				continue
			}
		}

		switch c.process(ctx, d) {
		case acked:
			b.Reset()
			continue
		case unsettled:
			// The source still owns d. Fetching past it would let a later
			// ack cover it, so it is handled again first.
			held = &d
		}
		if !pause(ctx, b.NextBackOff()) {
			return
		}
	}
}

type outcome int

const (
	acked outcome = iota
	requeued
	unsettled
)

// process handles one delivery and reports how it was settled. The handler
// runs detached from loop cancellation so a stop never cuts an application
// in half.
func (c *Consumer) process(ctx context.Context, d Delivery) outcome {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.handleTimeout)
	defer cancel()

	log := c.logger.With("queue", d.Queue, "attempt", d.Attempt)

	err := c.handler(hctx, d.Body)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrMalformedMessage):
		log.Warn(hctx, "Dropping malformed message", "error", err)
	default:
		log.Error(hctx, "Message processing failed, requeueing", "error", err)
		if nackErr := c.source.Nack(hctx, d, true); nackErr != nil {
			log.Error(hctx, "Nack failed, retrying message before next fetch", "error", nackErr)
			return unsettled
		}
		return requeued
	}

	if ackErr := c.source.Ack(hctx, d); ackErr != nil {
		log.Error(hctx, "Ack failed, retrying message before next fetch", "error", ackErr)
		return unsettled
	}
	return acked
}

// pause sleeps for d unless ctx ends first; it reports whether to go on.
func pause(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 30 * time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
