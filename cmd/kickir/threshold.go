package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/teschmitt/kickir/pkg/kickir"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold [SIDE:VALUE]",
	Short: "Show the live thresholds, or change one side",
	Long: `Without arguments the current thresholds are read from the admin endpoint.
With SIDE:VALUE (for example HOME:40) the change is sent over NATS when --nats
is set, and as PUT /thresholds otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			th, err := fetchThresholds(adminURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "HOME:%d AWAY:%d\n", th.Home, th.Away)
			return nil
		}

		change := args[0]
		if natsURL != "" {
			subject, _ := cmd.Flags().GetString("subject")
			if err := publishThreshold(natsURL, subject, change); err != nil {
				return err
			}
			fmt.Fprintf(out, "published %q on %s\n", change, subject)
			return nil
		}

		if err := putThreshold(adminURL, change); err != nil {
			return err
		}
		fmt.Fprintf(out, "applied %q\n", change)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print goal notifications as they are published on NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if natsURL == "" {
			return errors.New("--nats (or KICKIR_NATS_URL) is required")
		}
		subject, _ := cmd.Flags().GetString("subject")

		nc, err := nats.Connect(natsURL, nats.Name("kickir-watch"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
			fmt.Fprintf(out, "[%s] %s\n", time.Now().Format(time.RFC3339), string(msg.Data))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer sub.Unsubscribe()

		fmt.Fprintf(os.Stderr, "Watching %s on %s (Ctrl+C to stop)\n", subject, natsURL)
		<-ctx.Done()
		return nil
	},
}

func init() {
	thresholdCmd.Flags().String("subject", "kickir.threshold", "NATS subject for threshold changes")
	watchCmd.Flags().String("subject", "kickir.goals", "NATS subject carrying goal notifications")
}

func fetchThresholds(base string) (kickir.Thresholds, error) {
	var th kickir.Thresholds
	resp, err := http.Get(strings.TrimRight(base, "/") + "/thresholds")
	if err != nil {
		return th, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return th, fmt.Errorf("unexpected status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&th)
	return th, err
}

func putThreshold(base, change string) error {
	req, err := http.NewRequest(http.MethodPut, strings.TrimRight(base, "/")+"/thresholds", strings.NewReader(change))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("threshold rejected (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func publishThreshold(url, subject, change string) error {
	nc, err := nats.Connect(url, nats.Name("kickir-cli"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	if err := nc.Publish(subject, []byte(change)); err != nil {
		return err
	}
	return nc.FlushTimeout(2 * time.Second)
}
