package kafkabus

import (
	"context"
	"io"
	"sync"

	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
	onClose  func()
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.onClose != nil {
		w.onClose()
	}
	return nil
}

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

type fakeReader struct {
	incoming  chan kafka.Message
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	committed []kafka.Message
	onClose   func()
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{incoming: make(chan kafka.Message, len(msgs)+8), done: make(chan struct{})}
	for _, m := range msgs {
		r.incoming <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-r.done:
		return kafka.Message{}, io.EOF
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.incoming:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		if r.onClose != nil {
			r.onClose()
		}
	})
	return nil
}

func (r *fakeReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func noDeclare(calls *int) declareFunc {
	return func(ctx context.Context, cfg Config, topic string) error {
		*calls++
		return nil
	}
}

func writerFactory(w *fakeWriter) func(Config, string, logging.Logger) messageWriter {
	return func(Config, string, logging.Logger) messageWriter { return w }
}

func readerFactory(r *fakeReader) func(Config, string, logging.Logger) messageReader {
	return func(Config, string, logging.Logger) messageReader { return r }
}

func header(m kafka.Message, key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
