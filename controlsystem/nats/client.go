// Package nats implements a control-system adapter (§6) over NATS core
// publish/subscribe: each resolved public variable becomes one subject,
// carrying a compact binary encoding of its Buffer. Grounded on
// natsclient/client.go's connection-status/circuit-breaker Client, scaled
// down to the single concern ctrlmesh needs from it: a supervised
// connection that a ControlSystemFactory can hand adapters over.
package nats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/pkg/retry"
)

// Status mirrors natsclient.ConnectionStatus, narrowed to the states this
// package's Client actually reports.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client supervises one NATS connection shared by every adapter a Factory
// hands out. Reconnection is delegated to nats.go's own client (it already
// reconnects transparently); Client's own responsibility is the initial
// connect-with-retry and exposing connection status for diagnostics.
type Client struct {
	url  string
	opts []nats.Option
	log  *slog.Logger

	status   atomic.Value // Status
	failures atomic.Int32

	connectRetry retry.Config
	metrics      *metric.Metrics

	mu   sync.RWMutex
	conn *nats.Conn
}

// ClientOption configures a Client, following the functional-option idiom
// natsclient/options.go uses for its own connection options.
type ClientOption func(*Client)

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithName sets the client name NATS reports for this connection.
func WithName(name string) ClientOption {
	return func(c *Client) { c.opts = append(c.opts, nats.Name(name)) }
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) { c.opts = append(c.opts, nats.UserInfo(username, password)) }
}

// WithTLS enables TLS using the given client certificate and CA files.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) {
		if certFile != "" && keyFile != "" {
			c.opts = append(c.opts, nats.ClientCert(certFile, keyFile))
		}
		if caFile != "" {
			c.opts = append(c.opts, nats.RootCAs(caFile))
		}
	}
}

// WithConnectRetry overrides the backoff schedule used by Connect. Defaults
// to retry.Persistent(), since a control-system link is a long-lived
// dependency worth retrying patiently rather than failing fast.
func WithConnectRetry(cfg retry.Config) ClientOption {
	return func(c *Client) { c.connectRetry = cfg }
}

// WithMetrics wires the shared runtime metrics into the client's
// connection-status callbacks, publishing the adapter_connected gauge and
// adapter_reconnects_total counter (metric.Metrics.RecordAdapterConnected /
// RecordAdapterReconnect).
func WithMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for url. Connect must be called before any
// adapter built from this client can publish or receive.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{url: url, log: slog.Default(), connectRetry: retry.Persistent()}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(StatusDisconnected)
	return c
}

// Status reports the current connection status.
func (c *Client) Status() Status {
	return c.status.Load().(Status)
}

// IsHealthy reports whether the underlying connection is currently up.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

// Failures returns the number of connect attempts that have failed so far.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Connect establishes the connection, retrying with backoff until it
// succeeds, the connect retry schedule runs out of attempts, or ctx is
// done (§6: control-system adapters are collaborator concerns, but
// ctrlmesh must not treat a slow broker as a fatal startup error).
func (c *Client) Connect(ctx context.Context) error {
	c.status.Store(StatusConnecting)
	opts := append(append([]nats.Option{}, c.opts...),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	)

	err := retry.Do(ctx, c.connectRetry, func() error {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			c.failures.Add(1)
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.status.Store(StatusDisconnected)
		return ctrlerrors.WrapTransient(err, "nats.Client", "Connect", c.url)
	}

	c.status.Store(StatusConnected)
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(true)
	}
	c.log.Info("connected to nats", "url", c.url)
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.status.Store(StatusDisconnected)
	return conn.Drain()
}

// connection returns the live connection, or an error if none has been
// established yet.
func (c *Client) connection() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, ctrlerrors.LogicError("nats.Client", "connection", "used before Connect succeeded")
	}
	return c.conn, nil
}

// Publish sends data on subject over the supervised connection.
func (c *Client) Publish(subject string, data []byte) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	if err := conn.Publish(subject, data); err != nil {
		return ctrlerrors.WrapTransient(err, "nats.Client", "Publish", subject)
	}
	return nil
}

// subscribe registers handler as an async subscriber on subject.
func (c *Client) subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, ctrlerrors.WrapTransient(err, "nats.Client", "subscribe", subject)
	}
	return sub, nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.status.Store(StatusDisconnected)
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(false)
	}
	c.log.Warn("nats connection lost", "url", c.url, "error", err)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.status.Store(StatusConnected)
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(true)
		c.metrics.RecordAdapterReconnect()
	}
	c.log.Info("nats connection restored", "url", conn.ConnectedUrl())
}

func (c *Client) handleClosed(*nats.Conn) {
	c.status.Store(StatusDisconnected)
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(false)
	}
	c.log.Info("nats connection closed", "url", c.url)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.log.Error("nats async error", "subject", subject, "error", err)
}

// WaitConnected blocks until the connection reports healthy or timeout
// elapses, mirroring natsclient.Client.WaitForConnection's role: Connect
// returning nil only means the initial dial succeeded, not that health
// monitoring or an in-flight reconnect has settled.
func (c *Client) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsHealthy() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.IsHealthy()
}
