package queue

import (
	"context"
	"sync"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// MemQueue is an in-memory FIFO of goal events. With maxLen 0 it is
// unbounded; otherwise the overflow policy decides which event is lost.
type MemQueue struct {
	mu     sync.Mutex
	data   []domain.GoalEvent
	max    int
	policy string
	closed bool
	wake   chan struct{}
	obs    ports.Observability
}

// NewMemQueue builds a queue. obs may be nil.
func NewMemQueue(maxLen int, onFull string, obs ports.Observability) *MemQueue {
	if onFull == "" {
		onFull = ports.DropOldest
	}
	return &MemQueue{
		data:   make([]domain.GoalEvent, 0, 8),
		max:    maxLen,
		policy: onFull,
		wake:   make(chan struct{}, 1),
		obs:    obs,
	}
}

// Push appends ev without blocking. It reports false when ev itself was not
// stored, either because the queue is closed or full under drop_newest.
func (q *MemQueue) Push(ev domain.GoalEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.max > 0 && len(q.data) >= q.max {
		if q.policy != ports.DropOldest {
			q.mu.Unlock()
			q.dropped(ev)
			return false
		}
		lost := q.data[0]
		q.data = append(q.data[:0], q.data[1:]...)
		q.data = append(q.data, ev)
		q.mu.Unlock()
		q.dropped(lost)
		q.signal()
		return true
	}
	q.data = append(q.data, ev)
	q.mu.Unlock()
	q.signal()
	return true
}

// Pop blocks until an event is available, the queue is closed and drained,
// or ctx is done.
func (q *MemQueue) Pop(ctx context.Context) (domain.GoalEvent, error) {
	for {
		q.mu.Lock()
		if len(q.data) > 0 {
			ev := q.data[0]
			q.data = append(q.data[:0], q.data[1:]...)
			more := len(q.data) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.GoalEvent{}, ports.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return domain.GoalEvent{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Close stops accepting events. Pending events stay poppable.
func (q *MemQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *MemQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *MemQueue) dropped(ev domain.GoalEvent) {
	if q.obs == nil {
		return
	}
	q.obs.IncCounter(ports.MetricQueueDropped, 1)
	q.obs.LogError("goal_dropped", nil,
		ports.Field{Key: "goal", Value: ev.Goal.String()},
		ports.Field{Key: "policy", Value: q.policy})
}

var _ ports.GoalQueue = (*MemQueue)(nil)
