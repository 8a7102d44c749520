package kickir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teschmitt/kickir/internal/adapters/observability"
	"github.com/teschmitt/kickir/internal/adapters/queue"
	"github.com/teschmitt/kickir/internal/app/pipeline"
	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// ErrQueueFull indicates the goal queue rejected the goal according to policy.
var ErrQueueFull = errors.New("kickir: queue full")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("kickir: publisher closed")

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Policy Policy
	Logger *slog.Logger
}

func (c *PublisherConfig) applyDefaults() {
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = ports.DropOldest
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// Publisher exposes the queue → notifier → sink half of the pipeline to
// callers that detect goals themselves (a camera, a test rig, a replay).
// Goals get the same numbering and "<seq>: <goal>" text as sensor goals.
type Publisher struct {
	registry *prometheus.Registry
	queue    ports.GoalQueue
	notifier *pipeline.Notifier
	cancel   context.CancelFunc
	doneCh   chan struct{}
	runErr   error
	closed   atomic.Bool
	now      func() time.Time
}

// NewPublisher starts a notifier that delivers to sink. Wrap several sinks
// with NewFanout to reach all of them.
func NewPublisher(cfg *PublisherConfig, sink Sink) (*Publisher, error) {
	if cfg == nil {
		cfg = &PublisherConfig{}
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	cfg.applyDefaults()
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	obs := observability.NewPromObs(registry, cfg.Logger)
	q := queue.NewMemQueue(cfg.Policy.MaxQueueLen, cfg.Policy.OnQueueFull, obs)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		registry: registry,
		queue:    q,
		notifier: pipeline.NewNotifier(q, sink, obs),
		cancel:   cancel,
		doneCh:   make(chan struct{}),
		now:      time.Now,
	}

	go func() {
		defer close(p.doneCh)
		p.runErr = p.notifier.Run(ctx)
	}()
	return p, nil
}

// Publish queues one goal. GoalNone is rejected.
func (p *Publisher) Publish(goal DetectedGoal) error {
	if goal == domain.GoalNone {
		return fmt.Errorf("cannot publish %s", goal)
	}
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if !p.queue.Push(domain.GoalEvent{Goal: goal, DetectedAt: p.now()}) {
		if p.closed.Load() {
			return ErrPublisherClosed
		}
		return ErrQueueFull
	}
	return nil
}

// Close stops accepting goals and waits for the queued ones to be delivered.
// When ctx ends first the in-flight delivery is cancelled, the rest of the
// queue is abandoned and Close returns once the notifier has exited.
func (p *Publisher) Close(ctx context.Context) error {
	p.closed.Store(true)
	p.queue.Close()

	select {
	case <-p.doneCh:
		p.cancel()
		if p.runErr != nil && !errors.Is(p.runErr, ports.ErrQueueClosed) {
			return p.runErr
		}
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.doneCh
		return fmt.Errorf("drain goal queue: %w", ctx.Err())
	}
}

// Metrics exposes the publisher's delivery counters.
func (p *Publisher) Metrics() prometheus.Gatherer {
	return p.registry
}
