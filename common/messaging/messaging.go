// Package messaging provides abstractions for message broker communication.
// It defines interfaces that allow services to publish and subscribe to messages
// without being coupled to a specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// HeaderCorrelationID is the metadata key carrying the correlation
// identifier across the durable log. It travels as a message header, never
// in the payload body.
const HeaderCorrelationID = "Correlation-Id"

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Attempt is the delivery attempt count for messages received from a
	// durable consumer (1 for the first delivery). Zero when unknown.
	Attempt int

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// CorrelationID returns the correlation identifier attached to the
// message metadata, or empty if none was set.
func (m *Message) CorrelationID() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[HeaderCorrelationID]
}

// MessageHandler processes a received message.
// Return an error to indicate processing failure (may trigger retry depending on implementation).
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a message to the specified subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with full control over headers and metadata.
	PublishMsg(ctx context.Context, msg *Message) error

	// Request sends a message and waits for a response (request/reply pattern).
	// The timeout controls how long to wait for a response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	// Close releases any resources held by the publisher.
	Close() error
}

// Client is the minimal broker contract services hold on to.
type Client interface {
	Publisher

	// Drain gracefully closes the connection, allowing in-flight messages to complete.
	Drain() error

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool
}
