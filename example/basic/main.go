package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/teschmitt/kickir"
)

func main() {
	flow, err := kickir.Conf("../../config.example.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime exited: %v", err)
	}
}
