package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	adminURL string
	natsURL  string
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "kickir",
	Short:         "Infrared goal detection for table football",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", envOr("KICKIR_CONFIG", "./config.yaml"), "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin", envOr("KICKIR_ADMIN_URL", "http://localhost:9100"), "admin HTTP base URL of a running kickir")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats", os.Getenv("KICKIR_NATS_URL"), "NATS server URL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(thresholdCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kickir: %v\n", err)
		os.Exit(1)
	}
}
