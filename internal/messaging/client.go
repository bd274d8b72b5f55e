// Package messaging publishes threat records and run summaries over NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/pktwatch/internal/logging"
)

// Publisher is the transport the threat sink writes to.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
	Flush(ctx context.Context) error
	Close()
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "pktwatch",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client implements Publisher using a NATS connection.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to NATS. Connection state changes are logged through
// logger, which may be nil.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
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
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends data to subject with optional headers.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	if len(headers) > 0 {
		msg.Header = make(nats.Header, len(headers))
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}
	return c.conn.PublishMsg(msg)
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.Publish(ctx, subject, data, nil)
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return c.conn.FlushWithContext(ctx)
}

// Close closes the connection. Call Flush first to be sure of delivery.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
