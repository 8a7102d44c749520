package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

const DefaultGoalSubject = "kickir.goals"

// NATSSink publishes the notification text on a subject. The connection is
// owned by the caller.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultGoalSubject
	}
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(_ context.Context, n domain.Notification) error {
	msg := nats.NewMsg(s.subject)
	msg.Data = []byte(n.Text)
	msg.Header.Set("Kickir-Seq", fmt.Sprint(n.Seq))
	msg.Header.Set("Kickir-Goal", n.Goal.String())
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// Close flushes pending publishes; it leaves the connection open.
func (s *NATSSink) Close() error {
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.FlushTimeout(time.Second)
}

var _ ports.Sink = (*NATSSink)(nil)
