// Package natsclient manages a NATS connection for components that
// read configuration from JetStream key-value buckets. It wraps
// connection lifecycle, exposes bucket handles for config.KVSource,
// and reports connection health to the aggregator.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/runtimekit/errors"
	"github.com/c360/runtimekit/health"
	"github.com/c360/runtimekit/pkg/retry"
)

// Options configure the client connection.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultOptions returns connection settings suitable for a local
// broker.
func DefaultOptions() Options {
	return Options{
		URL:           nats.DefaultURL,
		Name:          "runtimekit",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client is a managed NATS connection with a JetStream handle.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// New builds an unconnected client.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		logger: logger.With("subsystem", "natsclient"),
	}
}

// Connect dials the broker and initializes JetStream, retrying
// transient dial failures with backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	return retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		conn, err := nats.Connect(c.opts.URL,
			nats.Name(c.opts.Name),
			nats.MaxReconnects(c.opts.MaxReconnects),
			nats.ReconnectWait(c.opts.ReconnectWait),
			nats.Timeout(c.opts.Timeout),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					c.logger.Warn("nats disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return errors.Wrap(err, "Client", "Connect", "dial broker")
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return errors.WrapFatal(err, "Client", "Connect", "init jetstream")
		}

		c.conn = conn
		c.js = js
		c.logger.Info("nats connected", "url", conn.ConnectedUrl())
		return nil
	})
}

// KeyValue opens an existing key-value bucket, suitable for handing to
// config.NewKVSource.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("client not connected"),
			"Client", "KeyValue", "check connection")
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(
			fmt.Errorf("bucket %q: %w", bucket, err),
			"Client", "KeyValue", "open bucket")
	}
	return kv, nil
}

// Probe reports connection health: healthy when connected, degraded
// while reconnecting, unhealthy otherwise. Shape matches
// component.Prober so the client can be registered as a component.
func (c *Client) Probe(_ context.Context) health.Report {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return health.Down("never connected")
	}
	switch conn.Status() {
	case nats.CONNECTED:
		rtt, err := conn.RTT()
		if err != nil {
			return health.Degrade("connected, rtt unavailable")
		}
		return health.OK(fmt.Sprintf("connected, rtt %s", rtt))
	case nats.RECONNECTING:
		return health.Degrade("reconnecting")
	default:
		return health.Down(fmt.Sprintf("connection %s", conn.Status()))
	}
}

// Close drains and closes the connection. Safe to call when never
// connected.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
}
