package kickir

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublisherNumbersGoals(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []Notification
		done = make(chan struct{})
	)
	sink := NewCallbackSink("collect", func(n Notification) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
		if len(got) == 3 {
			close(done)
		}
		return nil
	})

	pub, err := NewPublisher(&PublisherConfig{Logger: discardLogger()}, sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	for _, g := range []DetectedGoal{GoalAway, GoalHome, GoalAway} {
		if err := pub.Publish(g); err != nil {
			t.Fatalf("Publish(%s): %v", g, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	want := []string{"1: Away", "2: Home", "3: Away"}
	for i, n := range got {
		if n.Text != want[i] || n.Seq != uint32(i+1) {
			t.Fatalf("notification %d = %+v, want %s", i, n, want[i])
		}
	}
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pub.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(GoalHome); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected publish after close to fail, got %v", err)
	}

	mfs, err := pub.Metrics().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sent float64
	for _, mf := range mfs {
		if mf.GetName() == "kickir_notifications_sent_total" {
			sent = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if sent != 3 {
		t.Fatalf("expected 3 sent, got %f", sent)
	}
}

func TestPublisherRejectsNone(t *testing.T) {
	pub, err := NewPublisher(&PublisherConfig{Logger: discardLogger()}, &stubSink{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close(context.Background())

	if err := pub.Publish(GoalNone); err == nil {
		t.Fatalf("expected GoalNone to be rejected")
	}
}

func TestPublisherDropNewestWhenFull(t *testing.T) {
	release := make(chan struct{})
	sink := NewCallbackSink("slow", func(Notification) error {
		<-release
		return nil
	})
	pub, err := NewPublisher(&PublisherConfig{
		Policy: Policy{MaxQueueLen: 1, OnQueueFull: DropNewest},
		Logger: discardLogger(),
	}, sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	var full bool
	for i := 0; i < 5; i++ {
		if err := pub.Publish(GoalHome); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	close(release)
	if !full {
		t.Fatalf("expected the bounded queue to reject a goal")
	}
	if err := pub.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewPublisherValidates(t *testing.T) {
	if _, err := NewPublisher(nil, nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
	if _, err := NewPublisher(&PublisherConfig{Policy: Policy{OnQueueFull: "block"}}, &stubSink{}); err == nil {
		t.Fatalf("expected error for unsupported policy")
	}
}

func TestPublisherCloseCancelsBlockedDelivery(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{})}
	pub, err := NewPublisher(&PublisherConfig{Logger: discardLogger()}, sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if err := pub.Publish(GoalHome); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the goal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pub.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	select {
	case <-pub.doneCh:
	default:
		t.Fatalf("notifier still running after Close returned")
	}
	if !sink.cancelled.Load() {
		t.Fatalf("blocked delivery was not cancelled")
	}
}

func TestPublishRacingCloseReportsClosed(t *testing.T) {
	pub, err := NewPublisher(&PublisherConfig{Logger: discardLogger()}, &stubSink{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close(context.Background())

	// Close lands between the closed check and the push.
	pub.queue = &closingQueue{GoalQueue: pub.queue, pub: pub}
	if err := pub.Publish(GoalAway); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}

type blockingSink struct {
	entered   chan struct{}
	once      sync.Once
	cancelled atomic.Bool
}

func (s *blockingSink) Send(ctx context.Context, _ Notification) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	s.cancelled.Store(true)
	return ctx.Err()
}
func (s *blockingSink) Name() string { return "blocking" }
func (s *blockingSink) Close() error { return nil }

type closingQueue struct {
	GoalQueue
	pub *Publisher
}

func (q *closingQueue) Push(ev GoalEvent) bool {
	q.pub.closed.Store(true)
	q.GoalQueue.Close()
	return q.GoalQueue.Push(ev)
}
