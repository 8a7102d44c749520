package kickir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teschmitt/kickir/internal/adapters/control"
	"github.com/teschmitt/kickir/internal/adapters/observability"
	"github.com/teschmitt/kickir/internal/adapters/opcua"
	"github.com/teschmitt/kickir/internal/adapters/queue"
	"github.com/teschmitt/kickir/internal/adapters/sensor"
	"github.com/teschmitt/kickir/internal/adapters/sink"
	"github.com/teschmitt/kickir/internal/app/config"
	"github.com/teschmitt/kickir/internal/app/pipeline"
	"github.com/teschmitt/kickir/internal/detector"
	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
	"github.com/teschmitt/kickir/internal/threshold"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sensor   Sensor
	sinks    []Sink
	controls []ControlEndpoint
	queue    GoalQueue
	obs      Observability
	logger   *slog.Logger
}

// WithSensor injects a custom sensor (simulators, other ADCs, etc.) instead of
// the configured driver.
func WithSensor(s Sensor) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sensor = s
	}
}

// WithSink adds a sink next to the configured transports. It may be given
// more than once.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithControl adds a threshold control endpoint next to the configured ones.
func WithControl(c ControlEndpoint) RuntimeOption {
	return func(o *runtimeOverrides) {
		if c != nil {
			o.controls = append(o.controls, c)
		}
	}
}

// WithQueue replaces the in-memory goal queue.
func WithQueue(q GoalQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.obs = obs
	}
}

// WithLogger sets the slog logger behind the default Prometheus observability.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// Runtime wires sensor → detector → queue → notifier → sinks and the
// threshold control path, and exposes lifecycle hooks for embedding kickir
// inside any Go service.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	registry *prometheus.Registry

	store    *threshold.Store
	protocol *threshold.Protocol
	detector *detector.GoalDetector
	sensor   ports.Sensor
	queue    ports.GoalQueue
	fanout   *sink.Fanout
	notifier *pipeline.Notifier
	controls []ports.ControlEndpoint
	hub      *sink.WebSocketHub
	natsConn *nats.Conn

	mu       sync.Mutex
	started  bool
	stopping bool

	listener  net.Listener
	server    *http.Server
	gaugeStop chan struct{}

	scanCancel   context.CancelFunc
	scanDone     chan struct{}
	scanErr      error
	notifyCancel context.CancelFunc
	notifyDone   chan struct{}
	notifyErr    error
}

// NewRuntime bootstraps the configured adapters: the sensor driver, the
// in-memory goal queue, every enabled sink and control endpoint, and
// Prometheus observability. RuntimeOption values override or extend any of
// them. At least one sink must result.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.ValidateCore(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	registry := prometheus.NewRegistry()
	obs := overrides.obs
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			var err error
			logger, err = observability.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return nil, err
			}
		}
		obs = observability.NewPromObs(registry, logger)
	}

	r := &Runtime{
		cfg:      cfg,
		obs:      obs,
		registry: registry,
		store:    threshold.NewStore(*cfg.Detector.Threshold),
	}
	r.protocol = threshold.NewProtocol(r.store, obs)

	var closers []func() error
	fail := func(err error) (*Runtime, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	r.sensor = overrides.sensor
	if r.sensor == nil {
		s, err := buildSensor(cfg)
		if err != nil {
			return fail(fmt.Errorf("sensor %s: %w", cfg.Sensor.Driver, err))
		}
		r.sensor = s
	}
	closers = append(closers, r.sensor.Close)

	var sinks []ports.Sink

	if cfg.NATS.URL != "" {
		conn, err := control.Connect(cfg.NATS.URL, obs)
		if err != nil {
			return fail(fmt.Errorf("nats: %w", err))
		}
		closers = append(closers, func() error { conn.Close(); return nil })
		r.natsConn = conn
		sinks = append(sinks, sink.NewNATSSink(conn, cfg.NATS.GoalSubject))
		r.controls = append(r.controls, control.NewNATSControl(conn, cfg.NATS.ThresholdSubject))
	}

	if cfg.WebSocketEnabled() {
		r.hub = sink.NewWebSocketHub(cfg.WebSocket.MaxSubscribers, obs)
		closers = append(closers, r.hub.Close)
		sinks = append(sinks, r.hub)
		r.controls = append(r.controls, r.hub)
	}

	if cfg.TelegramEnabled() {
		tg, err := sink.NewTelegramSink(cfg.Telegram)
		if err != nil {
			return fail(fmt.Errorf("telegram: %w", err))
		}
		sinks = append(sinks, tg)
	}

	if cfg.KafkaEnabled() {
		kw, err := sink.NewKafkaSink(cfg.Kafka)
		if err != nil {
			return fail(fmt.Errorf("kafka: %w", err))
		}
		closers = append(closers, kw.Close)
		sinks = append(sinks, kw)
	}

	if cfg.PostgresEnabled() {
		pg, err := openPostgresSink(cfg.Postgres)
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		sinks = append(sinks, pg)
	}

	sinks = append(sinks, overrides.sinks...)
	r.controls = append(r.controls, overrides.controls...)
	r.fanout = sink.NewFanout(sinks...)
	if r.fanout.Len() == 0 {
		return fail(errors.New("no goal transport configured: enable a sink in config or pass WithSink"))
	}

	r.queue = overrides.queue
	if r.queue == nil {
		r.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen, cfg.Policy.OnQueueFull, obs)
	}

	r.detector = detector.New(r.sensor, r.store, obs,
		detector.WithCooldown(cfg.Detector.Cooldown),
		detector.WithChannels(*cfg.Detector.Channels),
		detector.WithErrorLogInterval(cfg.Detector.ErrorLogInterval),
	)
	r.notifier = pipeline.NewNotifier(r.queue, r.fanout, obs)

	return r, nil
}

func buildSensor(cfg *Config) (ports.Sensor, error) {
	switch cfg.Sensor.Driver {
	case config.SensorOPCUA:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err := opcua.NewSensor(ctx, cfg.Sensor.OPCUA)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SensorSim:
		ch := cfg.Detector.Channels
		return sensor.NewSimSensor(cfg.Sensor.Sim, ch.Home, ch.Away), nil
	default:
		s, err := sensor.NewIIOSensor(cfg.Sensor.IIO, cfg.Channels())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func openPostgresSink(pc config.PostgresConfig) (*sink.PostgresSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := sink.OpenPostgres(ctx, pc.DSN)
	if err != nil {
		return nil, err
	}
	pg, err := sink.NewPostgresSink(db, pc.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if pc.AutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

// Start launches the control endpoints, the admin server and both workers.
// It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("runtime already started")
	}

	for i, c := range r.controls {
		if err := c.Start(r.protocol); err != nil {
			r.stopControls(r.controls[:i])
			return fmt.Errorf("start control: %w", err)
		}
	}

	ln, err := net.Listen("tcp", r.cfg.HTTP.Addr)
	if err != nil {
		r.stopControls(r.controls)
		return fmt.Errorf("listen %s: %w", r.cfg.HTTP.Addr, err)
	}
	r.listener = ln
	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("admin_server_exited", err)
		}
	}()

	r.recordGauges()
	r.gaugeStop = make(chan struct{})
	go r.runGauges(r.gaugeStop, r.cfg.Policy.GaugeInterval)

	scanCtx, scanCancel := context.WithCancel(context.Background())
	r.scanCancel = scanCancel
	r.scanDone = make(chan struct{})
	go func() {
		defer close(r.scanDone)
		pipeline.PinWorker("scan", *r.cfg.Workers.Scan, r.obs)
		r.scanErr = pipeline.RunScanLoop(scanCtx, r.detector, r.queue, r.obs)
	}()

	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	r.notifyCancel = notifyCancel
	r.notifyDone = make(chan struct{})
	go func() {
		defer close(r.notifyDone)
		pipeline.PinWorker("notify", *r.cfg.Workers.Notify, r.obs)
		r.notifyErr = r.notifier.Run(notifyCtx)
	}()

	r.started = true
	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "addr", Value: ln.Addr().String()},
		ports.Field{Key: "sinks", Value: r.fanout.Name()},
		ports.Field{Key: "sensor", Value: r.cfg.Sensor.Driver})
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled or a worker stops
// on its own, then shuts down. A worker that stops outside shutdown is
// reported as an error.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-r.notifyDone:
		runErr = fmt.Errorf("notifier stopped: %w", r.notifyErr)
	case <-r.scanDone:
		runErr = fmt.Errorf("scan loop stopped: %w", r.scanErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops the scan loop, lets the notifier drain what is already
// queued, then stops the control endpoints and closes the sinks, the sensor
// and the admin server. If ctx expires while draining, the notifier is
// cancelled and the remaining goals are dropped.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	started := r.started
	r.mu.Unlock()

	var errs []error

	if started {
		r.scanCancel()
		<-r.scanDone
	}

	r.queue.Close()
	if started {
		select {
		case <-r.notifyDone:
		case <-ctx.Done():
			r.notifyCancel()
			<-r.notifyDone
			errs = append(errs, fmt.Errorf("drain goal queue: %w", ctx.Err()))
		}
		r.notifyCancel()
		if r.notifyErr != nil && !errors.Is(r.notifyErr, ports.ErrQueueClosed) && !errors.Is(r.notifyErr, context.Canceled) {
			errs = append(errs, r.notifyErr)
		}

		errs = append(errs, r.stopControls(r.controls))
	}

	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.natsConn != nil {
		r.natsConn.Close()
	}
	if err := r.sensor.Close(); err != nil {
		errs = append(errs, err)
	}

	if started {
		close(r.gaugeStop)
		if err := r.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	r.obs.LogInfo("runtime_stopped")
	return errors.Join(errs...)
}

// Addr returns the admin server's listen address once started.
func (r *Runtime) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Threshold returns the live cutoff for side.
func (r *Runtime) Threshold(side Side) ThreshValue {
	return r.store.Get(side)
}

// SetThreshold applies a raw "<SIDE>:<VALUE>" write through the same path the
// remote control endpoints use.
func (r *Runtime) SetThreshold(raw string) error {
	return r.protocol.HandleWrite([]byte(raw))
}

// Metrics exposes the runtime's Prometheus registry.
func (r *Runtime) Metrics() prometheus.Gatherer {
	return r.registry
}

// Handler returns the admin HTTP handler without starting a server.
func (r *Runtime) Handler() http.Handler {
	deps := adminDeps{
		gatherer: r.registry,
		store:    r.store,
		control:  r.protocol,
		healthy:  r.healthy,
	}
	if r.hub != nil {
		deps.hub = r.hub
	}
	return newAdminRouter(deps)
}

func (r *Runtime) stopControls(cs []ports.ControlEndpoint) error {
	var errs []error
	for _, c := range cs {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopping
}

func (r *Runtime) runGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.recordGauges()
		}
	}
}

func (r *Runtime) recordGauges() {
	r.obs.SetGauge(ports.GaugeQueueLength, float64(r.queue.Len()))
	for _, side := range domain.Sides {
		r.obs.SetGauge(threshold.GaugeName(side), float64(r.store.Get(side)))
	}
}
