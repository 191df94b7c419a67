package events

import (
	"context"
	"errors"
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("publisher is not connected")

// Publisher announces lifecycle events. Implementations own one outbound
// channel and serialize concurrent sends on it.
type Publisher interface {
	// Connect opens the channel and declares the target queue. Calling it
	// again on a connected publisher is a no-op.
	Connect(ctx context.Context) error
	// PublishCreated sends the event without waiting for downstream processing.
	PublishCreated(ctx context.Context, event AccountCreated) error
	Close() error
}
