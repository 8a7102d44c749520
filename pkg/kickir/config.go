package kickir

import (
	"github.com/teschmitt/kickir/internal/adapters/opcua"
	"github.com/teschmitt/kickir/internal/adapters/sensor"
	"github.com/teschmitt/kickir/internal/adapters/sink"
	"github.com/teschmitt/kickir/internal/app/config"
	"github.com/teschmitt/kickir/internal/app/pipeline"
	"github.com/teschmitt/kickir/internal/detector"
	"github.com/teschmitt/kickir/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy bounds the goal queue.
	Policy = ports.Policy
	// DetectorConfig holds threshold, cooldown and channel wiring.
	DetectorConfig = config.DetectorConfig
	// Channels maps each side to its two beams.
	Channels = detector.Channels
	// SensorConfig selects and configures the sample source.
	SensorConfig = config.SensorConfig
	// IIOConfig configures the Linux IIO ADC sensor.
	IIOConfig = sensor.IIOConfig
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig binds a channel to a node.
	OPCUANodeConfig = opcua.NodeConfig
	// SimConfig drives the simulated sensor.
	SimConfig = sensor.SimConfig
	// Affinity pins a worker to a CPU at a nice level.
	Affinity = pipeline.Affinity
	// NATSConfig configures the goals and threshold subjects.
	NATSConfig = config.NATSConfig
	// TelegramConfig configures the chat announcer.
	TelegramConfig = sink.TelegramConfig
	// KafkaConfig configures the goal topic.
	KafkaConfig = sink.KafkaConfig
	// PostgresConfig configures the goal log table.
	PostgresConfig = config.PostgresConfig
	// HTTPConfig configures the admin server.
	HTTPConfig = config.HTTPConfig
)

const (
	DropNewest = ports.DropNewest
	DropOldest = ports.DropOldest

	SensorIIO   = config.SensorIIO
	SensorOPCUA = config.SensorOPCUA
	SensorSim   = config.SensorSim
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
