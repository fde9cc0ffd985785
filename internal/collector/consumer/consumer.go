// Package consumer runs the durable per-source consumer loops that drain
// the events stream into storage.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
	natsmsg "github.com/admetry-labs/admetry/common/messaging/nats"
	"github.com/admetry-labs/admetry/common/metrics"
	"github.com/admetry-labs/admetry/internal/collector/processor"
)

const serviceName = "collector"

// Options tune the durable consumers bound by Run.
type Options struct {
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
	NakDelay      time.Duration
}

// Consumer binds one durable consumer per configured source and feeds the
// processor. Each source gets its own consumer so a failing source does not
// stall the others.
type Consumer struct {
	js      *natsmsg.JetStreamClient
	proc    *processor.Processor
	opts    Options
	logger  *logging.Logger
	stops   []func()
	running bool
}

func New(js *natsmsg.JetStreamClient, proc *processor.Processor, opts Options, logger *logging.Logger) *Consumer {
	return &Consumer{js: js, proc: proc, opts: opts, logger: logger}
}

// Run provisions the streams and durable consumers for the given sources
// and starts consuming. It returns once every consumer is bound; message
// handling continues in the background until Stop is called.
func (c *Consumer) Run(ctx context.Context, sources []events.Source) error {
	if c.running {
		return fmt.Errorf("consumer already running")
	}

	// Stream provisioning is idempotent; doing it here means a collector
	// started before the gateway still finds its stream.
	if _, err := c.js.CreateOrUpdateStream(ctx, natsmsg.EventsStream); err != nil {
		return err
	}
	if _, err := c.js.CreateOrUpdateStream(ctx, natsmsg.QuarantineStream); err != nil {
		return err
	}

	for _, source := range sources {
		if !source.Valid() {
			return fmt.Errorf("unknown source %q", source)
		}

		cfg := natsmsg.ConsumerConfig{
			Name:          messaging.ConsumerName(source),
			FilterSubject: messaging.EventSubject(source),
			AckWait:       c.opts.AckWait,
			MaxDeliver:    c.opts.MaxDeliver,
			MaxAckPending: c.opts.MaxAckPending,
			NakDelay:      c.opts.NakDelay,
		}

		if _, err := c.js.CreateOrUpdateConsumer(ctx, natsmsg.EventsStream.Name, cfg); err != nil {
			return err
		}

		stop, err := c.js.ConsumeMessages(ctx, natsmsg.EventsStream.Name, cfg,
			messaging.QuarantineSubject(source), c.handlerFor(source))
		if err != nil {
			c.Stop()
			return err
		}
		c.stops = append(c.stops, stop)

		c.logger.Info("consumer started",
			logging.Source(string(source)),
			logging.Subject(cfg.FilterSubject),
			logging.String("consumer", cfg.Name))
	}

	c.running = true
	return nil
}

// handlerFor returns the message handler for one source. A nil return acks
// the message; an error naks it for redelivery until the delivery cap,
// after which the messaging layer quarantines it.
func (c *Consumer) handlerFor(source events.Source) messaging.MessageHandler {
	label := string(source)

	return func(ctx context.Context, msg *messaging.Message) error {
		logger := c.logger.WithCorrelationID(msg.CorrelationID())

		ev, err := events.Parse(msg.Data)
		if err != nil {
			metrics.EventsFailed.WithLabelValues(serviceName, label, metrics.CategoryParse).Inc()
			c.countQuarantine(label, msg)
			logger.Warn("message failed schema parse",
				logging.Source(label),
				logging.Attempt(msg.Attempt),
				logging.Error(err))
			return err
		}

		if err := c.proc.Process(ctx, ev, msg.CorrelationID()); err != nil {
			metrics.EventsFailed.WithLabelValues(serviceName, label, metrics.CategoryProcessing).Inc()
			c.countQuarantine(label, msg)
			logger.Error("event processing failed",
				logging.Source(label),
				logging.EventID(ev.EventID),
				logging.Attempt(msg.Attempt),
				logging.Error(err))
			return err
		}

		metrics.EventsProcessed.WithLabelValues(serviceName, label).Inc()
		logger.Info("event processed",
			logging.Source(label),
			logging.EventID(ev.EventID),
			logging.EventType(ev.EventType))
		return nil
	}
}

// countQuarantine records the quarantine that the messaging layer is about
// to perform when this failure was the message's final delivery.
func (c *Consumer) countQuarantine(label string, msg *messaging.Message) {
	if msg.Attempt >= c.opts.MaxDeliver {
		metrics.EventsQuarantined.WithLabelValues(serviceName, label).Inc()
	}
}

// Stop drains all consumer loops: no new deliveries, in-flight handlers
// finish within the messaging layer's grace period, unacked messages are
// redelivered to the next instance.
func (c *Consumer) Stop() {
	for _, stop := range c.stops {
		stop()
	}
	c.stops = nil
	c.running = false
}
