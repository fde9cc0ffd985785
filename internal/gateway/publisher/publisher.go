// Package publisher writes validated events to the durable log.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
	natsmsg "github.com/admetry-labs/admetry/common/messaging/nats"
)

// PublishError signals that a validated event could not be committed to the
// durable log. The gateway maps it to a 500 so the sender retries.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing to %s: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Publisher publishes events to the per-source subjects of the events
// stream, waiting for the stream's acknowledgment before reporting success.
type Publisher struct {
	js      *natsmsg.JetStreamClient
	timeout time.Duration
	logger  *logging.Logger
}

// New provisions the events and quarantine streams and returns a ready
// publisher. It does not return until the streams exist, so the gateway
// cannot accept traffic before the durable log is writable.
func New(ctx context.Context, js *natsmsg.JetStreamClient, timeout time.Duration, logger *logging.Logger) (*Publisher, error) {
	if _, err := js.CreateOrUpdateStream(ctx, natsmsg.EventsStream); err != nil {
		return nil, err
	}
	if _, err := js.CreateOrUpdateStream(ctx, natsmsg.QuarantineStream); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Publisher{js: js, timeout: timeout, logger: logger}, nil
}

// Publish writes the raw (already validated) event body to the subject of
// its source. It returns the correlation ID assigned to the message.
func (p *Publisher) Publish(ctx context.Context, ev *events.Event, body []byte) (string, error) {
	subject := messaging.EventSubject(ev.Source)
	correlationID := uuid.New().String()

	msg := &messaging.Message{
		Subject: subject,
		Data:    body,
		Metadata: map[string]string{
			messaging.HeaderCorrelationID: correlationID,
		},
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.js.PublishSync(pubCtx, msg); err != nil {
		return correlationID, &PublishError{Subject: subject, Err: err}
	}

	p.logger.Debug("event published",
		logging.Subject(subject),
		logging.EventID(ev.EventID),
		logging.CorrelationID(correlationID))

	return correlationID, nil
}

// Healthy reports whether the durable log can accept writes, verified with
// a broker round-trip rather than a bare connection flag.
func (p *Publisher) Healthy(ctx context.Context) bool {
	return messaging.CheckClientHealth(ctx, p.js).Healthy()
}
