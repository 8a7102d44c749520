package kickir

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teschmitt/kickir/internal/adapters/sink"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("kickir: channel sink closed")

// NotificationHandler is invoked once per delivered goal.
type NotificationHandler func(Notification) error

// NewCallbackSink adapts a NotificationHandler into a full Sink so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn NotificationHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes notifications via a channel; it returns the sink, the
// read-only channel, and a close function that the caller should invoke
// during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan Notification, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Notification, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

// NewFanout delivers every notification to all sinks concurrently and joins
// their errors. Nil sinks are skipped.
func NewFanout(sinks ...Sink) Sink {
	return sink.NewFanout(sinks...)
}

type callbackSink struct {
	name string
	fn   NotificationHandler
}

func (s *callbackSink) Send(_ context.Context, n Notification) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(n)
}

func (s *callbackSink) Name() string { return s.name }

func (s *callbackSink) Close() error { return nil }

type channelSink struct {
	name   string
	ch     chan Notification
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) Send(ctx context.Context, n Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- n:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// Close is a no-op; the channel is closed by the function NewChannelSink
// returned, so the reader decides when the stream ends.
func (s *channelSink) Close() error { return nil }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}
