package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// Notifier drains the goal queue, numbers each event and hands it to a sink.
type Notifier struct {
	queue ports.GoalQueue
	sink  ports.Sink
	obs   ports.Observability
	now   func() time.Time

	seq uint32
}

func NewNotifier(q ports.GoalQueue, sink ports.Sink, obs ports.Observability) *Notifier {
	return &Notifier{queue: q, sink: sink, obs: obs, now: time.Now}
}

// Run delivers events until Pop fails. A closed queue surfaces as
// ports.ErrQueueClosed; sink failures are counted and never stop the loop.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		ev, err := n.queue.Pop(ctx)
		if err != nil {
			return err
		}
		n.deliver(ctx, ev)
	}
}

// Seq returns the last number handed out.
func (n *Notifier) Seq() uint32 {
	return n.seq
}

func (n *Notifier) next() uint32 {
	if n.seq < math.MaxUint32 {
		n.seq++
	}
	return n.seq
}

func (n *Notifier) deliver(ctx context.Context, ev domain.GoalEvent) {
	seq := n.next()
	msg := domain.Notification{
		Seq:        seq,
		Goal:       ev.Goal,
		DetectedAt: ev.DetectedAt,
		SentAt:     n.now(),
		Text:       fmt.Sprintf("%d: %s", seq, ev.Goal),
	}

	if err := n.sink.Send(ctx, msg); err != nil {
		n.obs.IncCounter(ports.MetricNotificationsFailed, 1)
		n.obs.LogError("notify_failed", err,
			ports.Field{Key: "seq", Value: seq},
			ports.Field{Key: "sink", Value: n.sink.Name()})
		return
	}
	n.obs.ObserveLatency(ports.LatencyNotify, n.now().Sub(ev.DetectedAt).Seconds())
	n.obs.IncCounter(ports.MetricNotificationsSent, 1)
	n.obs.LogInfo("goal_notified",
		ports.Field{Key: "seq", Value: seq},
		ports.Field{Key: "goal", Value: ev.Goal.String()})
}
