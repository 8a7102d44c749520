package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
nats:
  url: nats://localhost:4222
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if *cfg.Detector.Threshold != 50 {
		t.Fatalf("expected default threshold 50, got %d", *cfg.Detector.Threshold)
	}
	if cfg.Detector.Cooldown != 2*time.Second {
		t.Fatalf("expected default cooldown 2s, got %s", cfg.Detector.Cooldown)
	}
	if cfg.Detector.Channels.Home != [2]domain.Channel{0, 1} || cfg.Detector.Channels.Away != [2]domain.Channel{2, 3} {
		t.Fatalf("unexpected default channels %+v", cfg.Detector.Channels)
	}
	if cfg.Policy.MaxQueueLen != 0 || cfg.Policy.OnQueueFull != ports.DropOldest {
		t.Fatalf("expected unbounded queue with drop_oldest, got %+v", cfg.Policy)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("expected default http addr :9100, got %s", cfg.HTTP.Addr)
	}
	if cfg.Sensor.Driver != SensorIIO {
		t.Fatalf("expected iio driver by default, got %s", cfg.Sensor.Driver)
	}
	if cfg.Workers.Scan.CPU != 1 || cfg.Workers.Scan.Nice != -10 || cfg.Workers.Notify.CPU != 0 {
		t.Fatalf("unexpected worker defaults %+v %+v", cfg.Workers.Scan, cfg.Workers.Notify)
	}
	if cfg.NATS.GoalSubject != "kickir.goals" || cfg.NATS.ThresholdSubject != "kickir.threshold" {
		t.Fatalf("unexpected subjects %+v", cfg.NATS)
	}
	if !cfg.WebSocketEnabled() || cfg.TelegramEnabled() || cfg.KafkaEnabled() || cfg.PostgresEnabled() {
		t.Fatalf("unexpected transport switches")
	}
}

func TestParseExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`
detector:
  threshold: 0
  cooldown: 500ms
  channels:
    home: [6, 7]
    away: [4, 5]
workers:
  scan: {cpu: -1, nice: 0}
  notify: {cpu: 0, nice: 5}
websocket:
  enabled: false
sensor:
  driver: sim
  sim:
    goal_every: 3s
kafka:
  brokers: ["k1:9092"]
  topic: goals
policy:
  max_queue_len: 16
  on_queue_full: drop_newest
log:
  format: json
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *cfg.Detector.Threshold != 0 {
		t.Fatalf("explicit zero threshold must be kept, got %d", *cfg.Detector.Threshold)
	}
	if cfg.Detector.Cooldown != 500*time.Millisecond {
		t.Fatalf("unexpected cooldown %s", cfg.Detector.Cooldown)
	}
	if cfg.Workers.Scan.CPU != -1 || cfg.Workers.Notify.Nice != 5 {
		t.Fatalf("explicit worker settings lost: %+v %+v", cfg.Workers.Scan, cfg.Workers.Notify)
	}
	if cfg.WebSocketEnabled() || !cfg.KafkaEnabled() {
		t.Fatalf("unexpected transport switches")
	}
	if cfg.Sensor.Sim.Baseline != 800 || cfg.Sensor.Sim.GoalEvery != 3*time.Second {
		t.Fatalf("sim defaults not applied: %+v", cfg.Sensor.Sim)
	}
	if got := cfg.Channels(); len(got) != 4 || got[0] != 6 {
		t.Fatalf("unexpected channel list %v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KICKIR_NATS_URL", "nats://edge:4222")
	t.Setenv("KICKIR_POSTGRES_DSN", "postgres://u:p@db/kicker")
	t.Setenv("KICKIR_HTTP_ADDR", "127.0.0.1:9200")
	t.Setenv("KICKIR_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Parse([]byte("kafka:\n  topic: goals\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.NATS.URL != "nats://edge:4222" || cfg.Postgres.DSN != "postgres://u:p@db/kicker" || cfg.HTTP.Addr != "127.0.0.1:9200" {
		t.Fatalf("env overrides not applied: %+v %+v %+v", cfg.NATS, cfg.Postgres, cfg.HTTP)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no transport":     "websocket:\n  enabled: false\n",
		"bad driver":       "sensor:\n  driver: camera\n",
		"opcua no nodes":   "sensor:\n  driver: opcua\n  opcua:\n    endpoint: opc.tcp://plc:4840\n",
		"shared channel":   "detector:\n  channels:\n    home: [0, 1]\n    away: [1, 2]\n",
		"bad policy":       "policy:\n  on_queue_full: block\n",
		"telegram no chat": "telegram:\n  token: abc\n",
		"kafka no topic":   "kafka:\n  brokers: [k:9092]\n",
		"nice range":       "workers:\n  scan: {cpu: 1, nice: -40}\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "absent.yaml") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
