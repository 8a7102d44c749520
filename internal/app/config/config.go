package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teschmitt/kickir/internal/adapters/opcua"
	"github.com/teschmitt/kickir/internal/adapters/sensor"
	"github.com/teschmitt/kickir/internal/adapters/sink"
	"github.com/teschmitt/kickir/internal/app/pipeline"
	"github.com/teschmitt/kickir/internal/detector"
	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
	"github.com/teschmitt/kickir/internal/threshold"
)

const (
	SensorIIO   = "iio"
	SensorOPCUA = "opcua"
	SensorSim   = "sim"
)

type Config struct {
	Policy    ports.Policy        `yaml:"policy"`
	Detector  DetectorConfig      `yaml:"detector"`
	Sensor    SensorConfig        `yaml:"sensor"`
	Workers   WorkersConfig       `yaml:"workers"`
	NATS      NATSConfig          `yaml:"nats"`
	WebSocket WebSocketConfig     `yaml:"websocket"`
	Telegram  sink.TelegramConfig `yaml:"telegram"`
	Kafka     sink.KafkaConfig    `yaml:"kafka"`
	Postgres  PostgresConfig      `yaml:"postgres"`
	HTTP      HTTPConfig          `yaml:"http"`
	Log       LogConfig           `yaml:"log"`
}

type DetectorConfig struct {
	// Threshold is the starting cutoff for both sides.
	Threshold        *domain.ThreshValue `yaml:"threshold"`
	Cooldown         time.Duration       `yaml:"cooldown"`
	Channels         *detector.Channels  `yaml:"channels"`
	ErrorLogInterval time.Duration       `yaml:"error_log_interval"`
}

type SensorConfig struct {
	Driver string           `yaml:"driver"`
	IIO    sensor.IIOConfig `yaml:"iio"`
	OPCUA  opcua.Config     `yaml:"opcua"`
	Sim    sensor.SimConfig `yaml:"sim"`
}

type WorkersConfig struct {
	Scan   *pipeline.Affinity `yaml:"scan"`
	Notify *pipeline.Affinity `yaml:"notify"`
}

type NATSConfig struct {
	URL              string `yaml:"url"`
	GoalSubject      string `yaml:"goal_subject"`
	ThresholdSubject string `yaml:"threshold_subject"`
}

type WebSocketConfig struct {
	Enabled        *bool `yaml:"enabled"`
	MaxSubscribers int   `yaml:"max_subscribers"`
}

type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads YAML from path, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse is Load without the file read.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a Config with every default applied. It is not validated.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// WebSocketEnabled reports whether the /ws hub is mounted.
func (c *Config) WebSocketEnabled() bool {
	return c.WebSocket.Enabled == nil || *c.WebSocket.Enabled
}

// TelegramEnabled reports whether a bot token was configured.
func (c *Config) TelegramEnabled() bool { return c.Telegram.Token != "" }

// KafkaEnabled reports whether brokers were configured.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

// PostgresEnabled reports whether a DSN was configured.
func (c *Config) PostgresEnabled() bool { return c.Postgres.DSN != "" }

func (c *Config) applyEnv() {
	c.NATS.URL = envOr("KICKIR_NATS_URL", c.NATS.URL)
	c.Telegram.Token = envOr("KICKIR_TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = envInt64("KICKIR_TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Postgres.DSN = envOr("KICKIR_POSTGRES_DSN", c.Postgres.DSN)
	c.Kafka.Brokers = envList("KICKIR_KAFKA_BROKERS", c.Kafka.Brokers)
	c.HTTP.Addr = envOr("KICKIR_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = envOr("KICKIR_LOG_LEVEL", c.Log.Level)
}

// ApplyDefaults fills every unset field. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = ports.DropOldest
	}
	if c.Policy.GaugeInterval <= 0 {
		c.Policy.GaugeInterval = time.Second
	}
	if c.Detector.Threshold == nil {
		v := threshold.DefaultValue
		c.Detector.Threshold = &v
	}
	if c.Detector.Cooldown <= 0 {
		c.Detector.Cooldown = detector.DefaultCooldown
	}
	if c.Detector.Channels == nil {
		ch := detector.DefaultChannels
		c.Detector.Channels = &ch
	}
	if c.Detector.ErrorLogInterval == 0 {
		c.Detector.ErrorLogInterval = time.Second
	}
	if c.Sensor.Driver == "" {
		c.Sensor.Driver = SensorIIO
	}
	if c.Workers.Scan == nil {
		a := pipeline.ScanAffinity
		c.Workers.Scan = &a
	}
	if c.Workers.Notify == nil {
		a := pipeline.NotifyAffinity
		c.Workers.Notify = &a
	}
	if c.NATS.GoalSubject == "" {
		c.NATS.GoalSubject = "kickir.goals"
	}
	if c.NATS.ThresholdSubject == "" {
		c.NATS.ThresholdSubject = "kickir.threshold"
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "goal_events"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9100"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	switch c.Sensor.Driver {
	case SensorOPCUA:
		c.Sensor.OPCUA.ApplyDefaults()
	case SensorSim:
		c.Sensor.Sim.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if err := c.ValidateCore(); err != nil {
		return err
	}
	if c.NATS.URL == "" && !c.WebSocketEnabled() && !c.TelegramEnabled() && !c.KafkaEnabled() && !c.PostgresEnabled() {
		return errors.New("no goal transport configured: set nats.url, websocket, telegram, kafka or postgres")
	}
	return nil
}

// ValidateCore checks everything except that a goal transport is configured,
// for callers that inject their own sinks.
func (c *Config) ValidateCore() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	switch c.Sensor.Driver {
	case SensorIIO, SensorSim:
	case SensorOPCUA:
		if err := c.Sensor.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("sensor.driver %q not supported (want %s, %s or %s)", c.Sensor.Driver, SensorIIO, SensorOPCUA, SensorSim)
	}

	if err := c.validateChannels(); err != nil {
		return err
	}

	if c.TelegramEnabled() && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when telegram.token is set")
	}
	if c.KafkaEnabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	for name, a := range map[string]*pipeline.Affinity{"scan": c.Workers.Scan, "notify": c.Workers.Notify} {
		if a.Nice < -20 || a.Nice > 19 {
			return fmt.Errorf("workers.%s.nice %d out of range [-20,19]", name, a.Nice)
		}
		if a.CPU < -1 {
			return fmt.Errorf("workers.%s.cpu %d invalid (use -1 to disable pinning)", name, a.CPU)
		}
	}
	return nil
}

func (c *Config) validateChannels() error {
	seen := make(map[domain.Channel]domain.Side, 4)
	for _, side := range domain.Sides {
		pair := c.Detector.Channels.Home
		if side == domain.SideAway {
			pair = c.Detector.Channels.Away
		}
		for _, ch := range pair {
			if ch < 0 {
				return fmt.Errorf("detector.channels: negative channel %d", ch)
			}
			if prev, ok := seen[ch]; ok && prev != side {
				return fmt.Errorf("detector.channels: channel %d used by both %s and %s", ch, prev, side)
			}
			seen[ch] = side
		}
	}
	return nil
}

// Channels lists the distinct physical channels the detector reads.
func (c *Config) Channels() []domain.Channel {
	ch := c.Detector.Channels
	out := make([]domain.Channel, 0, 4)
	seen := make(map[domain.Channel]bool, 4)
	for _, v := range []domain.Channel{ch.Home[0], ch.Home[1], ch.Away[0], ch.Away[1]} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
