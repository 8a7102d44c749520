package pipeline

import (
	"context"
	"time"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// GoalScanner is the part of the detector the scan loop drives.
type GoalScanner interface {
	Scan() domain.DetectedGoal
	ResetCooldown()
	LastGoal() time.Time
}

// RunScanLoop polls the detector without pause and hands every goal to q.
// It returns ctx.Err() once ctx is cancelled.
func RunScanLoop(ctx context.Context, det GoalScanner, q ports.GoalQueue, obs ports.Observability) error {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		goal := det.Scan()
		if goal == domain.GoalNone {
			continue
		}

		// anchor first, then publish
		det.ResetCooldown()
		ev := domain.GoalEvent{Goal: goal, DetectedAt: det.LastGoal()}
		obs.IncCounter(goalCounter(goal), 1)
		if !q.Push(ev) {
			obs.LogError("goal_not_queued", nil, ports.Field{Key: "goal", Value: goal.String()})
		}
	}
}

func goalCounter(g domain.DetectedGoal) string {
	if g == domain.GoalAway {
		return ports.MetricGoalsAway
	}
	return ports.MetricGoalsHome
}
