package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/events"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source reads one topic as a member of a consumer group. Ack commits the
// offset. A requeue produces a copy of the message back to the same topic
// with the redelivery header incremented and then commits the original, so
// the copy is delivered after whatever is already queued.
type Source struct {
	cfg    Config
	topic  string
	logger logging.Logger

	declare   declareFunc
	newReader func(cfg Config, topic string, logger logging.Logger) messageReader
	newWriter func(cfg Config, topic string, logger logging.Logger) messageWriter

	mu     sync.Mutex
	reader messageReader
	writer messageWriter
	closed bool
}

var _ events.Source = (*Source)(nil)

func NewSource(cfg Config, topic string, logger logging.Logger) *Source {
	cfg.applyDefaults()
	return &Source{
		cfg:       cfg,
		topic:     topic,
		logger:    logger.With("module", "kafka_source", "topic", topic),
		declare:   DeclareTopic,
		newReader: newKafkaReader,
		newWriter: newKafkaWriter,
	}
}

func newKafkaReader(cfg Config, topic string, logger logging.Logger) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		Dialer:      newDialer(cfg),
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(context.Background(), "reader: "+fmt.Sprintf(msg, args...))
		}),
	})
}

func (s *Source) Declare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return events.ErrSourceClosed
	}
	if err := s.cfg.validate(); err != nil {
		return err
	}
	if s.cfg.GroupID == "" {
		return fmt.Errorf("kafka source for %s needs a consumer group", s.topic)
	}
	if err := s.declare(ctx, s.cfg, s.topic); err != nil {
		return err
	}
	if s.reader == nil {
		s.reader = s.newReader(s.cfg, s.topic, s.logger)
		s.writer = s.newWriter(s.cfg, s.topic, s.logger)
	}
	return nil
}

func (s *Source) Fetch(ctx context.Context) (events.Delivery, error) {
	s.mu.Lock()
	reader, closed := s.reader, s.closed
	s.mu.Unlock()

	if closed {
		return events.Delivery{}, events.ErrSourceClosed
	}
	if reader == nil {
		return events.Delivery{}, errors.New("kafka source is not declared")
	}

	m, err := reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || s.isClosed() {
			return events.Delivery{}, events.ErrSourceClosed
		}
		return events.Delivery{}, err
	}

	return events.Delivery{
		Queue:   s.topic,
		Body:    m.Value,
		Attempt: redeliveries(m) + 1,
		Handle:  m,
	}, nil
}

func (s *Source) Ack(ctx context.Context, d events.Delivery) error {
	m, err := message(d)
	if err != nil {
		return err
	}
	return s.commit(ctx, m)
}

func (s *Source) Nack(ctx context.Context, d events.Delivery, requeue bool) error {
	m, err := message(d)
	if err != nil {
		return err
	}

	if requeue {
		s.mu.Lock()
		writer := s.writer
		s.mu.Unlock()
		if writer == nil {
			return events.ErrSourceClosed
		}

		retry := kafka.Message{
			Key:     m.Key,
			Value:   m.Value,
			Headers: withRedelivery(m.Headers, redeliveries(m)+1),
		}
		if err := writer.WriteMessages(ctx, retry); err != nil {
			return fmt.Errorf("requeue message: %w", err)
		}
	}
	return s.commit(ctx, m)
}

func (s *Source) commit(ctx context.Context, m kafka.Message) error {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return events.ErrSourceClosed
	}
	if err := reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

// Close stops the requeue writer and then leaves the consumer group.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
	}
	return errors.Join(errs...)
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func message(d events.Delivery) (kafka.Message, error) {
	m, ok := d.Handle.(kafka.Message)
	if !ok {
		return kafka.Message{}, fmt.Errorf("foreign delivery handle %T", d.Handle)
	}
	return m, nil
}

func redeliveries(m kafka.Message) int {
	for _, h := range m.Headers {
		if h.Key == HeaderRedelivery {
			n, err := strconv.Atoi(string(h.Value))
			if err != nil || n < 0 {
				return 0
			}
			return n
		}
	}
	return 0
}

func withRedelivery(headers []kafka.Header, n int) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != HeaderRedelivery {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: HeaderRedelivery, Value: []byte(strconv.Itoa(n))})
}
