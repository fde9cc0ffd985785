// Package nats implements the messaging interfaces using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
)

// Config holds NATS connection configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client connection name for monitoring.
	Name string

	// MaxReconnects is the maximum reconnection attempts (-1 for unlimited).
	MaxReconnects int

	// ReconnectWait is the delay between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "admetry-client",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client wraps a NATS connection and implements messaging.Client.
type Client struct {
	conn   *nats.Conn
	logger *logging.Logger
}

// NewClient creates a new NATS client with the given configuration.
// It blocks until the initial connection is established or the timeout
// elapses, so a returned client is ready for traffic.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", logging.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to nats", logging.String("url", conn.ConnectedUrl()))

	return &Client{conn: conn, logger: logger}, nil
}

// Conn exposes the underlying connection for JetStream setup.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Publish sends a message to the specified subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// PublishMsg sends a message with metadata as NATS headers.
func (c *Client) PublishMsg(_ context.Context, msg *messaging.Message) error {
	nm := &nats.Msg{
		Subject: msg.Subject,
		Data:    msg.Data,
		Header:  nats.Header{},
	}
	for k, v := range msg.Metadata {
		nm.Header.Set(k, v)
	}
	if err := c.conn.PublishMsg(nm); err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	return nil
}

// Request sends a request and waits for a reply.
func (c *Client) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.conn.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", subject, err)
	}

	return fromNATSMsg(resp), nil
}

// Drain gracefully closes the connection, flushing pending messages.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close closes the connection immediately.
func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func fromNATSMsg(nm *nats.Msg) *messaging.Message {
	msg := &messaging.Message{
		Subject:   nm.Subject,
		Data:      nm.Data,
		Timestamp: time.Now(),
	}
	if len(nm.Header) > 0 {
		msg.Metadata = make(map[string]string, len(nm.Header))
		for k := range nm.Header {
			msg.Metadata[k] = nm.Header.Get(k)
		}
	}
	return msg
}
