package kafkabus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Header keys stamped on every produced message.
const (
	HeaderEventID     = "event-id"
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
	HeaderRedelivery  = "redelivery"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type declareFunc func(ctx context.Context, cfg Config, topic string) error

// Publisher produces AccountCreated events to one topic. Sends are
// serialized on a single writer.
type Publisher struct {
	cfg    Config
	topic  string
	logger logging.Logger

	declare   declareFunc
	newWriter func(cfg Config, topic string, logger logging.Logger) messageWriter

	mu     sync.Mutex
	writer messageWriter
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(cfg Config, topic string, logger logging.Logger) *Publisher {
	cfg.applyDefaults()
	return &Publisher{
		cfg:       cfg,
		topic:     topic,
		logger:    logger.With("module", "kafka_publisher", "topic", topic),
		declare:   DeclareTopic,
		newWriter: newKafkaWriter,
	}
}

func newKafkaWriter(cfg Config, topic string, logger logging.Logger) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(context.Background(), "writer: "+fmt.Sprintf(msg, args...))
		}),
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		return nil
	}
	if err := p.cfg.validate(); err != nil {
		return err
	}
	if err := p.declare(ctx, p.cfg, p.topic); err != nil {
		return fmt.Errorf("%w: declare topic: %w", common.ErrTransient, err)
	}

	p.writer = p.newWriter(p.cfg, p.topic, p.logger)
	p.logger.Info(ctx, "Kafka publisher connected", "brokers", p.cfg.Brokers)
	return nil
}

func (p *Publisher) PublishCreated(ctx context.Context, event events.AccountCreated) error {
	body, err := events.Encode(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Email),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(uuid.NewString())},
			{Key: HeaderEventType, Value: []byte("AccountCreated")},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return events.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: write message: %w", common.ErrTransient, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
