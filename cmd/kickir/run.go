package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teschmitt/kickir/pkg/kickir"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the detector, notifier and control endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, err := kickir.Conf(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a config file without starting the runtime",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := kickir.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good (sensor=%s, threshold=%d, cooldown=%s)\n",
			cfgPath, cfg.Sensor.Driver, *cfg.Detector.Threshold, cfg.Detector.Cooldown)
		return nil
	},
}
