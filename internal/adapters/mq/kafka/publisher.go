package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

// MessageWriter is the part of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// WriterConfig selects the alerts topic.
type WriterConfig struct {
	Brokers []string
	Topic   string
}

// NewWriter returns an asynchronous writer for the alerts topic. Write
// failures are reported through metrics and the log, never to the caller.
func NewWriter(cfg WriterConfig, log logger.Logger) (*kafkago.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = logger.Noop()
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err == nil {
				return
			}
			metrics.RecordDeliveryError(model.TransportKafka)
			log.Warn(context.Background(), "kafka alert batch failed",
				logger.Int("messages", len(msgs)), logger.Error(err))
		},
	}, nil
}

// AlertPublisher delivers envelopes for Kafka connections. Messages are
// keyed by recipient so one actor's events stay ordered within a partition.
type AlertPublisher struct {
	writer MessageWriter
	log    logger.Logger
}

// NewAlertPublisher creates a publisher writing through w.
func NewAlertPublisher(w MessageWriter, opts ...PublisherOption) *AlertPublisher {
	p := &AlertPublisher{writer: w, log: logger.Noop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deliver implements the dispatcher contract for the kafka transport.
func (p *AlertPublisher) Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(env.Recipient),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(env.Event.EventKind())},
			{Key: "conn", Value: []byte(conn.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	metrics.RecordKafkaMessage("produced")
	return nil
}

// Close flushes and closes the writer.
func (p *AlertPublisher) Close() error { return p.writer.Close() }
