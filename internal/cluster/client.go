// Package cluster implements ports.Client against a NATS JetStream-hosted
// control/data plane (spec.md's external collaborator placed out of scope,
// §1). It is grounded on C360Studio-semstreams/natsclient: a Client
// wrapping a *nats.Conn and a jetstream.JetStream, connecting with
// nats.go's own reconnect options rather than a hand-rolled circuit
// breaker, since this repo's internal/breaker already arbitrates retries
// one layer up (every pipeline and the Manager loop), so duplicating it in
// the transport would double-gate the same failures.
package cluster

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"

	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/ports"
)

// Config parameterizes a Client connection.
type Config struct {
	URL            string        `yaml:"url"`
	Rack           uint32        `yaml:"rack"`
	ConnectName    string        `yaml:"connect_name"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Client is the NATS-backed ports.Client. Subjects are namespaced by rack
// and channel key: every channel, data-plane or control-plane (the
// sy_task_* channels resolve to keys like any other), is published on
// "daq.<rack>.ch.<key>".
type Client struct {
	cfg  Config
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials url and opens a JetStream context, returning
// errs.Unreachable wrapped on any failure so callers can hand it to a
// Breaker.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "connect to cluster")
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.Unreachable, err, "open jetstream context")
	}
	return &Client{cfg: cfg, conn: conn, js: js}, nil
}

// Close drains and closes the underlying connection.
func (c *Client) Close() error {
	if err := c.conn.Drain(); err != nil {
		return errors.Wrap(err, "drain cluster connection")
	}
	return nil
}

func (c *Client) Channels() ports.ChannelRegistry { return &channelRegistry{c: c} }
func (c *Client) Hardware() ports.HardwareRegistry { return &hardwareRegistry{c: c} }
func (c *Client) Telem() ports.TelemTransport      { return &telemTransport{c: c} }

// ctxWithTimeout returns a context bounded by the Client's connect timeout,
// used for one-shot JetStream calls that don't take a caller context.
func (c *Client) ctxWithTimeout() (context.Context, context.CancelFunc) {
	timeout := c.cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
