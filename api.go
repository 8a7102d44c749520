package kickir

import (
	"time"

	base "github.com/teschmitt/kickir/pkg/kickir"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = base.ErrQueueFull
	ErrQueueClosed       = base.ErrQueueClosed
	ErrPublisherClosed   = base.ErrPublisherClosed
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/teschmitt/kickir directly.
type (
	Config              = base.Config
	Policy              = base.Policy
	SensorConfig        = base.SensorConfig
	IIOConfig           = base.IIOConfig
	OPCUAConfig         = base.OPCUAConfig
	OPCUANodeConfig     = base.OPCUANodeConfig
	SimConfig           = base.SimConfig
	NATSConfig          = base.NATSConfig
	TelegramConfig      = base.TelegramConfig
	KafkaConfig         = base.KafkaConfig
	PostgresConfig      = base.PostgresConfig
	Flow                = base.Flow
	FlowOption          = base.FlowOption
	StreamInOption      = base.StreamInOption
	StreamOutOption     = base.StreamOutOption
	Runtime             = base.Runtime
	RuntimeOption       = base.RuntimeOption
	Thresholds          = base.Thresholds
	Notification        = base.Notification
	NotificationHandler = base.NotificationHandler
	DetectedGoal        = base.DetectedGoal
	Side                = base.Side
	ThreshValue         = base.ThreshValue
	Channel             = base.Channel
	Channels            = base.Channels
	Affinity            = base.Affinity
	Sensor              = base.Sensor
	Sink                = base.Sink
	GoalQueue           = base.GoalQueue
	ControlEndpoint     = base.ControlEndpoint
	ControlHandler      = base.ControlHandler
	Observability       = base.Observability
	Publisher           = base.Publisher
	PublisherConfig     = base.PublisherConfig
)

const (
	GoalNone = base.GoalNone
	GoalHome = base.GoalHome
	GoalAway = base.GoalAway

	SideHome = base.SideHome
	SideAway = base.SideAway

	SensorIIO   = base.SensorIIO
	SensorOPCUA = base.SensorOPCUA
	SensorSim   = base.SensorSim

	DropNewest = base.DropNewest
	DropOldest = base.DropOldest
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSensor(s Sensor) StreamInOption {
	return base.StreamInSensor(s)
}

func StreamInSim(sim SimConfig) StreamInOption {
	return base.StreamInSim(sim)
}

func StreamInThreshold(v ThreshValue) StreamInOption {
	return base.StreamInThreshold(v)
}

func StreamInCooldown(d time.Duration) StreamInOption {
	return base.StreamInCooldown(d)
}

func StreamInChannels(home, away [2]Channel) StreamInOption {
	return base.StreamInChannels(home, away)
}

func StreamInScanWorker(cpu, nice int) StreamInOption {
	return base.StreamInScanWorker(cpu, nice)
}

func StreamInQueue(q GoalQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutControl(c ControlEndpoint) StreamOutOption {
	return base.StreamOutControl(c)
}

func StreamOutQueuePolicy(maxLen int, onFull string) StreamOutOption {
	return base.StreamOutQueuePolicy(maxLen, onFull)
}

func StreamOutNATS(url string) StreamOutOption {
	return base.StreamOutNATS(url)
}

func StreamOutWebSocket(maxSubscribers int) StreamOutOption {
	return base.StreamOutWebSocket(maxSubscribers)
}

func StreamOutWithoutWebSocket() StreamOutOption {
	return base.StreamOutWithoutWebSocket()
}

func StreamOutNotifyWorker(cpu, nice int) StreamOutOption {
	return base.StreamOutNotifyWorker(cpu, nice)
}

func StreamOutCallback(name string, fn NotificationHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSensor(s Sensor) RuntimeOption {
	return base.WithSensor(s)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithControl(c ControlEndpoint) RuntimeOption {
	return base.WithControl(c)
}

func WithQueue(q GoalQueue) RuntimeOption {
	return base.WithQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn NotificationHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Notification, func()) {
	return base.NewChannelSink(name, buffer)
}

func NewFanout(sinks ...Sink) Sink {
	return base.NewFanout(sinks...)
}

// Publisher for externally detected goals.
func NewPublisher(cfg *PublisherConfig, sink Sink) (*Publisher, error) {
	return base.NewPublisher(cfg, sink)
}
