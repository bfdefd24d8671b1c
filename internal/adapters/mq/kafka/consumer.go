// Package kafka connects the service to Kafka: position reports are read
// from one topic and outbound envelopes are written to another.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/internal/domain/dedupe"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/schema"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

// MessageReader is the part of *kafkago.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Submitter hands a report to the event loop.
type Submitter interface {
	SubmitReport(ctx context.Context, conn model.Conn, rep model.PositionReport) error
}

// ReaderConfig selects the reports topic.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader returns a consumer-group reader for the reports topic.
func NewReader(cfg ReaderConfig) (*kafkago.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        250 * time.Millisecond,
		StartOffset:    kafkago.LastOffset,
		CommitInterval: time.Second,
	}), nil
}

// ReportConsumer reads position reports and submits them to the loop. Each
// actor reporting over Kafka is its own connection, keyed by actor id.
type ReportConsumer struct {
	reader    MessageReader
	submit    Submitter
	deduper   dedupe.Deduper
	validator *schema.Validator
	log       logger.Logger

	backoff    time.Duration
	maxBackoff time.Duration
}

// NewReportConsumer creates a consumer reading from r.
func NewReportConsumer(r MessageReader, submit Submitter, opts ...ConsumerOption) *ReportConsumer {
	c := &ReportConsumer{
		reader:     r,
		submit:     submit,
		deduper:    dedupe.NewInMemoryDeduper(),
		log:        logger.Noop(),
		backoff:    20 * time.Millisecond,
		maxBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. Read errors are logged and retried.
func (c *ReportConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.RecordErrorByComponent("kafka", "fetch")
			c.log.Warn(ctx, "kafka fetch failed", logger.Error(err))
			if !sleep(ctx, c.maxBackoff) {
				return nil
			}
			continue
		}
		metrics.RecordKafkaMessage("consumed")

		if err := c.handle(ctx, msg); err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			c.log.Warn(ctx, "dropped kafka report",
				logger.String("topic", msg.Topic),
				logger.Int("partition", msg.Partition),
				logger.String("offset", strconv.FormatInt(msg.Offset, 10)),
				logger.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			metrics.RecordErrorByComponent("kafka", "commit")
			c.log.Warn(ctx, "kafka commit failed", logger.Error(err))
		}
	}
}

// handle validates, dedupes and submits one message.
func (c *ReportConsumer) handle(ctx context.Context, msg kafkago.Message) error {
	if c.validator != nil {
		if err := c.validator.ValidateBytes(msg.Value); err != nil {
			metrics.RecordReportRejected("schema")
			return err
		}
	}
	var rep model.PositionReport
	if err := json.Unmarshal(msg.Value, &rep); err != nil {
		metrics.RecordReportRejected("decode")
		return fmt.Errorf("decode report: %w", err)
	}

	key := rep.ReportID
	if key == "" {
		key = msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
	}
	if c.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordKafkaDuplicate()
		c.log.Debug(ctx, "duplicate kafka report", logger.String("report_id", key))
		return nil
	}

	conn := model.Conn{Transport: model.TransportKafka, ID: rep.ID}
	wait := c.backoff
	for {
		err := c.submit.SubmitReport(ctx, conn, rep)
		if err == nil {
			return nil
		}
		if !errors.Is(err, queue.ErrFull) || !sleep(ctx, wait) {
			c.deduper.Unrecord(ctx, key)
			return err
		}
		wait = min(wait*2, c.maxBackoff)
	}
}

// Close closes the reader.
func (c *ReportConsumer) Close() error { return c.reader.Close() }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
