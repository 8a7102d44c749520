package ports

import (
	"context"
	"errors"

	"github.com/teschmitt/kickir/internal/domain"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("goal queue closed")

// GoalQueue is the single-producer/single-consumer channel between the scan
// loop and the notifier. Push must never block the producer.
type GoalQueue interface {
	Push(ev domain.GoalEvent) bool
	Pop(ctx context.Context) (domain.GoalEvent, error)
	Close()
	Len() int
}
