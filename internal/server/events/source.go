package events

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Fetch after Close.
var ErrSourceClosed = errors.New("source is closed")

// Delivery is one inbound message. Handle is owned by the Source that
// produced it and must be passed back to Ack or Nack untouched.
type Delivery struct {
	Queue   string
	Body    []byte
	Attempt int
	Handle  any
}

// Source is a consumer's own connection to one durable queue.
type Source interface {
	// Declare creates the queue if missing. Safe to call repeatedly.
	Declare(ctx context.Context) error
	// Fetch blocks until a message arrives or ctx is done.
	Fetch(ctx context.Context) (Delivery, error)
	// Ack removes the message from the queue.
	Ack(ctx context.Context, d Delivery) error
	// Nack rejects the message; with requeue it is delivered again later.
	Nack(ctx context.Context, d Delivery, requeue bool) error
	// Close releases the channel and then the connection.
	Close() error
}
