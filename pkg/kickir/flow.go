package kickir

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Flow assembles a Runtime in three steps. Conf loads the settings, StreamIN
// shapes the light gate and the detector, and StreamOUT chooses where goals
// are announced and builds the runtime.
//
// Settings handed to the builder land on a private copy of the Config, so the
// caller's Config is never modified.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
	errs []error
}

// FlowOption adjusts a Flow right after its Config is loaded.
type FlowOption func(*Flow)

// StreamInOption shapes the gate side: sensor, detector and scan worker.
type StreamInOption func(*Flow)

// StreamOutOption shapes the announce side: queue, sinks, controls and the
// notify worker.
type StreamOutOption func(*Flow)

// Conf loads the YAML config at path and starts a Flow from it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from a copy of cfg.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	working := *cfg
	f := &Flow{cfg: &working}
	apply(f, opts)
	return f, nil
}

// Config returns the Flow's working copy of the configuration.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// StreamIN applies gate-side settings.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f != nil {
		apply(f, opts)
	}
	return f
}

// StreamOUT applies announce-side settings and builds the Runtime. Every
// rejected setting is reported together.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, errors.New("flow is nil")
	}
	apply(f, opts)
	if err := errors.Join(f.errs...); err != nil {
		return nil, fmt.Errorf("flow settings: %w", err)
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the Runtime and runs it until ctx ends.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions passes raw RuntimeOption values through the builder.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) { f.use(opts...) }
}

// StreamInSensor replaces the configured sensor driver.
func StreamInSensor(s Sensor) StreamInOption {
	return func(f *Flow) {
		if s != nil {
			f.use(WithSensor(s))
		}
	}
}

// StreamInSim runs the gate on the simulator.
func StreamInSim(sim SimConfig) StreamInOption {
	return func(f *Flow) {
		f.cfg.Sensor.Driver = SensorSim
		f.cfg.Sensor.Sim = sim
	}
}

// StreamInThreshold sets the starting threshold for both sides. Live changes
// still go through the control endpoints or Runtime.SetThreshold.
func StreamInThreshold(v ThreshValue) StreamInOption {
	return func(f *Flow) {
		f.cfg.Detector.Threshold = &v
	}
}

// StreamInCooldown sets the quiet period after each goal.
func StreamInCooldown(d time.Duration) StreamInOption {
	return func(f *Flow) {
		if d <= 0 {
			f.fail(fmt.Errorf("cooldown must be positive, got %s", d))
			return
		}
		f.cfg.Detector.Cooldown = d
	}
}

// StreamInChannels maps both beams of each side to sensor channels.
func StreamInChannels(home, away [2]Channel) StreamInOption {
	return func(f *Flow) {
		f.cfg.Detector.Channels = &Channels{Home: home, Away: away}
	}
}

// StreamInScanWorker places the scan worker. cpu -1 leaves it unpinned.
func StreamInScanWorker(cpu, nice int) StreamInOption {
	return func(f *Flow) {
		f.cfg.Workers.Scan = &Affinity{CPU: cpu, Nice: nice}
	}
}

// StreamInQueue swaps the in-memory goal queue.
func StreamInQueue(q GoalQueue) StreamInOption {
	return func(f *Flow) {
		if q != nil {
			f.use(WithQueue(q))
		}
	}
}

// StreamInObservability replaces the Prometheus and slog backend.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if obs != nil {
			f.use(WithObservability(obs))
		}
	}
}

// StreamOutQueuePolicy bounds the goal queue. maxLen 0 keeps it unbounded.
func StreamOutQueuePolicy(maxLen int, onFull string) StreamOutOption {
	return func(f *Flow) {
		p := f.cfg.Policy
		p.MaxQueueLen = maxLen
		p.OnQueueFull = onFull
		if err := p.Validate(); err != nil {
			f.fail(err)
			return
		}
		f.cfg.Policy = p
	}
}

// StreamOutNATS publishes goals to and takes threshold changes from the NATS
// server at url.
func StreamOutNATS(url string) StreamOutOption {
	return func(f *Flow) {
		f.cfg.NATS.URL = url
	}
}

// StreamOutWebSocket mounts the /ws hub for up to maxSubscribers clients.
func StreamOutWebSocket(maxSubscribers int) StreamOutOption {
	return func(f *Flow) {
		on := true
		f.cfg.WebSocket.Enabled = &on
		f.cfg.WebSocket.MaxSubscribers = maxSubscribers
	}
}

// StreamOutWithoutWebSocket leaves the /ws hub unmounted.
func StreamOutWithoutWebSocket() StreamOutOption {
	return func(f *Flow) {
		off := false
		f.cfg.WebSocket.Enabled = &off
	}
}

// StreamOutSink adds s next to the configured sinks.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.use(WithSink(s))
		}
	}
}

// StreamOutCallback adds a sink that calls fn for every goal.
func StreamOutCallback(name string, fn NotificationHandler) StreamOutOption {
	return func(f *Flow) {
		f.use(WithSink(NewCallbackSink(name, fn)))
	}
}

// StreamOutControl adds a threshold control endpoint.
func StreamOutControl(c ControlEndpoint) StreamOutOption {
	return func(f *Flow) {
		if c != nil {
			f.use(WithControl(c))
		}
	}
}

// StreamOutNotifyWorker places the notify worker. cpu -1 leaves it unpinned.
func StreamOutNotifyWorker(cpu, nice int) StreamOutOption {
	return func(f *Flow) {
		f.cfg.Workers.Notify = &Affinity{CPU: cpu, Nice: nice}
	}
}

func apply[O ~func(*Flow)](f *Flow, opts []O) {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
}

func (f *Flow) use(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}

func (f *Flow) fail(err error) {
	f.errs = append(f.errs, err)
}
