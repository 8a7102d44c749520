// Package control receives remote threshold writes.
package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teschmitt/kickir/internal/ports"
)

const DefaultThresholdSubject = "kickir.threshold"

// Connect dials NATS with unlimited reconnects and logs link changes.
func Connect(url string, obs ports.Observability, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("kickir"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			obs.LogError("nats_disconnected", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			obs.LogInfo("nats_reconnected", ports.Field{Key: "url", Value: nc.ConnectedUrlRedacted()})
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	obs.LogInfo("nats_connected", ports.Field{Key: "url", Value: nc.ConnectedUrlRedacted()})
	return nc, nil
}

// NATSControl feeds every message on a subject into a ControlHandler. No
// reply is sent; a rejected write is only logged by the handler.
type NATSControl struct {
	conn    *nats.Conn
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNATSControl(conn *nats.Conn, subject string) *NATSControl {
	if subject == "" {
		subject = DefaultThresholdSubject
	}
	return &NATSControl{conn: conn, subject: subject}
}

func (c *NATSControl) Start(h ports.ControlHandler) error {
	if h == nil {
		return errors.New("control handler is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return fmt.Errorf("already subscribed to %s", c.subject)
	}

	sub, err := c.conn.Subscribe(c.subject, func(msg *nats.Msg) {
		_ = h.HandleWrite(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	if err := c.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription %s: %w", c.subject, err)
	}
	c.sub = sub
	return nil
}

func (c *NATSControl) Stop() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("drain %s: %w", c.subject, err)
	}
	return nil
}

var _ ports.ControlEndpoint = (*NATSControl)(nil)
