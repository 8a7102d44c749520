package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teschmitt/kickir"
)

// Keeps a running score from the goal stream.
func main() {
	flow, err := kickir.Conf("../../config.example.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, goals, closeGoals := kickir.NewChannelSink("scoreboard", 32)
	defer closeGoals()

	go scoreboard(goals)

	if err := flow.Run(ctx, kickir.StreamOutSink(sink)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func scoreboard(goals <-chan kickir.Notification) {
	var home, away int
	for n := range goals {
		switch n.Goal {
		case kickir.GoalHome:
			home++
		case kickir.GoalAway:
			away++
		}
		fmt.Printf("[%s] #%d %s  HOME %d : %d AWAY\n", n.SentAt.Format(time.Kitchen), n.Seq, n.Goal, home, away)
	}
}
