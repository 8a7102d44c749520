package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var statsMetrics = []string{
	"kickir_goals_home_total",
	"kickir_goals_away_total",
	"kickir_notifications_sent_total",
	"kickir_notifications_failed_total",
	"kickir_sensor_errors_total",
	"kickir_queue_length",
	"kickir_threshold_home",
	"kickir_threshold_away",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Poll the metrics endpoint and print live counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")
		url := strings.TrimRight(adminURL, "/") + "/metrics"
		out := cmd.OutOrStdout()

		if once {
			return printMetricsSnapshot(out, url)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := printMetricsSnapshot(out, url); err != nil {
					fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
				}
			}
		}
	},
}

func init() {
	statsCmd.Flags().Duration("interval", 2*time.Second, "refresh interval")
	statsCmd.Flags().Bool("once", false, "print one snapshot and exit")
}

func printMetricsSnapshot(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := parseMetrics(resp.Body, statsMetrics)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "[%s] home=%.0f away=%.0f sent=%.0f failed=%.0f sensor_errors=%.0f queue=%.0f threshold=%.0f/%.0f\n",
		time.Now().Format(time.RFC3339),
		values["kickir_goals_home_total"],
		values["kickir_goals_away_total"],
		values["kickir_notifications_sent_total"],
		values["kickir_notifications_failed_total"],
		values["kickir_sensor_errors_total"],
		values["kickir_queue_length"],
		values["kickir_threshold_home"],
		values["kickir_threshold_away"],
	)
	return nil
}

// parseMetrics picks unlabelled samples out of the Prometheus text format.
func parseMetrics(r io.Reader, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	for _, n := range names {
		values[n] = 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range values {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	return values, scanner.Err()
}
