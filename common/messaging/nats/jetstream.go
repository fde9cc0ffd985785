package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
// NewJetStreamClient does not return until the connection is live, so it
// doubles as the readiness barrier for services that publish or consume.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name.
	Name string

	// Subjects are the subjects this stream captures.
	Subjects []string

	// MaxAge is the maximum age of messages in the stream.
	MaxAge time.Duration

	// MaxBytes is the maximum total size of the stream.
	MaxBytes int64

	// MaxMsgs is the maximum number of messages in the stream.
	MaxMsgs int64

	// Retention policy (LimitsPolicy, InterestPolicy, WorkQueuePolicy).
	Retention jetstream.RetentionPolicy

	// Storage type (FileStorage, MemoryStorage).
	Storage jetstream.StorageType

	// Discard controls behavior when limits are hit (DiscardOld, DiscardNew).
	Discard jetstream.DiscardPolicy

	// Replicas is the number of stream replicas.
	Replicas int
}

// ConsumerConfig defines a durable JetStream consumer configuration.
type ConsumerConfig struct {
	// Name is the durable consumer name.
	Name string

	// FilterSubject filters which messages this consumer receives.
	FilterSubject string

	// AckWait is time to wait for acknowledgment before redelivery.
	AckWait time.Duration

	// MaxDeliver is maximum delivery attempts before a message is
	// considered poisonous.
	MaxDeliver int

	// MaxAckPending is maximum unacknowledged messages.
	MaxAckPending int

	// NakDelay is the redelivery backoff applied on processing failure.
	NakDelay time.Duration
}

// drainGracePeriod bounds how long a stopped consumer waits for in-flight
// handlers before forcing the subscription closed.
const drainGracePeriod = 30 * time.Second

// DefaultConsumerConfig returns the standard collector consumer settings.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 256,
		NakDelay:      5 * time.Second,
	}
}

// Predefined stream configurations.
var (
	// EventsStream is the durable log for validated engagement events.
	// Limits-based retention keeps every message for the full window
	// regardless of consumer acks, so collectors for different sources
	// read independently.
	EventsStream = StreamConfig{
		Name:      "EVENTS",
		Subjects:  messaging.EventSubjects(),
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024, // 1GB
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
		Replicas:  1,
	}

	// QuarantineStream holds poison messages that exhausted their delivery
	// attempts. Kept longer than the events stream so operators can
	// inspect and replay them.
	QuarantineStream = StreamConfig{
		Name:      "EVENTS_QUARANTINE",
		Subjects:  []string{messaging.QuarantineSubjectPrefix + ">"},
		MaxAge:    30 * 24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024, // 256MB
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
		Replicas:  1,
	}
)

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config, logger *logging.Logger) (*JetStreamClient, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return &JetStreamClient{
		Client: client,
		js:     js,
	}, nil
}

// CreateOrUpdateStream creates or updates a stream. Services call this on
// startup before accepting traffic; it is idempotent across restarts.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
		Discard:   cfg.Discard,
		Replicas:  cfg.Replicas,
	}

	stream, err := c.js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("creating stream %s: %w", cfg.Name, err)
	}

	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer on a stream.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("getting stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("creating consumer %s: %w", cfg.Name, err)
	}

	return consumer, nil
}

// PublishSync publishes a message and waits for the stream's acknowledgment.
// Metadata entries travel as NATS headers.
func (c *JetStreamClient) PublishSync(ctx context.Context, msg *messaging.Message) (*jetstream.PubAck, error) {
	nm := &nats.Msg{
		Subject: msg.Subject,
		Data:    msg.Data,
	}
	if len(msg.Metadata) > 0 {
		nm.Header = nats.Header{}
		for k, v := range msg.Metadata {
			nm.Header.Set(k, v)
		}
	}

	ack, err := c.js.PublishMsg(ctx, nm)
	if err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	return ack, nil
}

// ConsumeMessages starts consuming from a durable consumer.
//
// Handler outcomes map onto the durable log protocol: nil acks the message,
// an error naks it with the configured delay for redelivery. Once a message
// has been delivered cfg.MaxDeliver times and still fails, it is copied to
// quarantineSubject (with its headers and an Attempts entry) and terminated
// so it stops blocking the consumer.
//
// Returns a stop function that drains the consumer: no further messages are
// delivered, in-flight handlers run to completion within drainGracePeriod,
// and only then is the handler context released.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName string, cfg ConsumerConfig, quarantineSubject string, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("getting stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("getting consumer %s: %w", cfg.Name, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		m := fromJetStreamMsg(msg)

		if err := handler(consumeCtx, m); err != nil {
			if quarantineSubject != "" && m.Attempt >= cfg.MaxDeliver {
				c.quarantine(consumeCtx, quarantineSubject, m, err)
				_ = msg.Term()
				return
			}
			_ = msg.NakWithDelay(cfg.NakDelay)
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting consume on %s: %w", cfg.Name, err)
	}

	return func() {
		closed := cons.Closed()
		cons.Drain()
		select {
		case <-closed:
		case <-time.After(drainGracePeriod):
			cons.Stop()
		}
		cancel()
	}, nil
}

// quarantine copies a poison message to the quarantine subject. The copy is
// best-effort: if it fails we log and still terminate the original, since
// redelivering a message that failed MaxDeliver times would not help.
func (c *JetStreamClient) quarantine(ctx context.Context, subject string, m *messaging.Message, cause error) {
	qm := &messaging.Message{
		Subject:  subject,
		Data:     m.Data,
		Metadata: map[string]string{},
	}
	for k, v := range m.Metadata {
		qm.Metadata[k] = v
	}
	qm.Metadata["Origin-Subject"] = m.Subject
	qm.Metadata["Attempts"] = fmt.Sprintf("%d", m.Attempt)
	qm.Metadata["Last-Error"] = cause.Error()

	if _, err := c.PublishSync(ctx, qm); err != nil {
		c.logger.Error("failed to quarantine message",
			logging.Subject(m.Subject),
			logging.Attempt(m.Attempt),
			logging.Error(err))
		return
	}

	c.logger.Warn("message quarantined",
		logging.Subject(m.Subject),
		logging.Attempt(m.Attempt),
		logging.Error(cause))
}

func fromJetStreamMsg(msg jetstream.Msg) *messaging.Message {
	m := &messaging.Message{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
	}

	if headers := msg.Headers(); len(headers) > 0 {
		m.Metadata = make(map[string]string, len(headers))
		for k := range headers {
			m.Metadata[k] = headers.Get(k)
		}
	}

	if meta, err := msg.Metadata(); err == nil {
		m.Attempt = int(meta.NumDelivered)
		m.Timestamp = meta.Timestamp
	}

	return m
}
