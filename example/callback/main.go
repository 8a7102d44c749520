package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teschmitt/kickir/pkg/kickir"
)

// Runs against the simulated gate and tightens the away side after every
// home goal, printing the thresholds as they move.
func main() {
	flow, err := kickir.ConfFromConfig(kickir.DefaultConfig())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var rt *kickir.Runtime
	announce := func(n kickir.Notification) error {
		fmt.Printf("%s  latency %s\n", n.Text, n.SentAt.Sub(n.DetectedAt))
		if n.Goal != kickir.GoalHome {
			return nil
		}
		away := rt.Threshold(kickir.SideAway)
		if away <= 10 {
			return nil
		}
		if err := rt.SetThreshold(fmt.Sprintf("AWAY:%d", away-10)); err != nil {
			return err
		}
		fmt.Printf("  thresholds now HOME %d / AWAY %d\n", rt.Threshold(kickir.SideHome), rt.Threshold(kickir.SideAway))
		return nil
	}

	rt, err = flow.
		StreamIN(
			kickir.StreamInSim(kickir.SimConfig{GoalEvery: 3 * time.Second}),
			kickir.StreamInThreshold(70),
			kickir.StreamInCooldown(time.Second),
			kickir.StreamInScanWorker(-1, 0),
		).
		StreamOUT(
			kickir.StreamOutWithoutWebSocket(),
			kickir.StreamOutNotifyWorker(-1, 0),
			kickir.StreamOutCallback("stdout", announce),
		)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}
