package kafka

import (
	"time"

	"github.com/okian/roadwatch/internal/domain/dedupe"
	"github.com/okian/roadwatch/internal/schema"
	"github.com/okian/roadwatch/pkg/logger"
)

// ConsumerOption configures a ReportConsumer.
type ConsumerOption func(*ReportConsumer)

// WithDeduper sets the redelivery deduper.
func WithDeduper(d dedupe.Deduper) ConsumerOption {
	return func(c *ReportConsumer) {
		if d != nil {
			c.deduper = d
		}
	}
}

// WithValidator sets the schema used to check message values.
func WithValidator(v *schema.Validator) ConsumerOption {
	return func(c *ReportConsumer) {
		c.validator = v
	}
}

// WithRetryBackoff sets the initial and maximum wait between attempts to
// hand a report to a full queue.
func WithRetryBackoff(initial, maxBackoff time.Duration) ConsumerOption {
	return func(c *ReportConsumer) {
		if initial > 0 && maxBackoff >= initial {
			c.backoff = initial
			c.maxBackoff = maxBackoff
		}
	}
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(l logger.Logger) ConsumerOption {
	return func(c *ReportConsumer) {
		if l != nil {
			c.log = l
		}
	}
}

// PublisherOption configures an AlertPublisher.
type PublisherOption func(*AlertPublisher)

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(l logger.Logger) PublisherOption {
	return func(p *AlertPublisher) {
		if l != nil {
			p.log = l
		}
	}
}
