package kickir

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teschmitt/kickir/internal/adapters/queue"
	"github.com/teschmitt/kickir/internal/adapters/sensor"
	"github.com/teschmitt/kickir/internal/domain"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	off := false
	cfg.WebSocket.Enabled = &off
	cfg.Sensor.Driver = SensorSim
	cfg.Detector.Cooldown = 50 * time.Millisecond
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Workers.Scan = &Affinity{CPU: -1}
	cfg.Workers.Notify = &Affinity{CPU: -1}
	cfg.Policy.GaugeInterval = 10 * time.Millisecond
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	sensorStub := &stubSensor{}
	sinkStub := &stubSink{}
	queueStub := &stubQueue{}
	obsStub := &stubObservability{}
	controlStub := &stubControl{}

	rt, err := NewRuntime(testConfig(),
		WithSensor(sensorStub),
		WithSink(sinkStub),
		WithQueue(queueStub),
		WithObservability(obsStub),
		WithControl(controlStub),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	if rt.sensor != sensorStub {
		t.Fatalf("expected custom sensor to be used")
	}
	if rt.queue != queueStub {
		t.Fatalf("expected custom queue to be used")
	}
	if rt.obs != obsStub {
		t.Fatalf("expected custom observability to be used")
	}
	if rt.fanout.Len() != 1 || rt.fanout.Name() != "fanout(stub)" {
		t.Fatalf("unexpected fanout %s", rt.fanout.Name())
	}
	if len(rt.controls) != 1 || rt.controls[0] != controlStub {
		t.Fatalf("expected custom control endpoint, got %d", len(rt.controls))
	}
	if rt.natsConn != nil || rt.hub != nil {
		t.Fatalf("no transport should be wired when all are disabled")
	}
}

func TestNewRuntimeRequiresASink(t *testing.T) {
	_, err := NewRuntime(testConfig(), WithSensor(&stubSensor{}), WithObservability(&stubObservability{}))
	if err == nil || !strings.Contains(err.Error(), "no goal transport") {
		t.Fatalf("expected missing transport error, got %v", err)
	}
}

func TestNewRuntimeClosesSensorOnFailure(t *testing.T) {
	s := &stubSensor{}
	_, err := NewRuntime(testConfig(), WithSensor(s), WithObservability(&stubObservability{}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !s.closed {
		t.Fatalf("sensor should be closed when construction fails")
	}
}

func TestNewRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.OnQueueFull = "block"
	if _, err := NewRuntime(cfg, WithSink(&stubSink{})); err == nil {
		t.Fatalf("expected policy error")
	}
	if _, err := NewRuntime(nil); err == nil {
		t.Fatalf("expected nil config error")
	}
}

func TestRuntimeDeliversNumberedGoals(t *testing.T) {
	cfg := testConfig()
	sim := sensor.NewSimSensor(SimConfig{Pulse: 20 * time.Millisecond}, cfg.Detector.Channels.Home, cfg.Detector.Channels.Away)
	snk, ch, closeSink := NewChannelSink("test", 8)
	defer closeSink()

	rt, err := NewRuntime(cfg, WithSensor(sim), WithSink(snk), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.Addr() == nil {
		t.Fatalf("admin server should be listening")
	}

	time.Sleep(80 * time.Millisecond)
	sim.Shoot(SideHome)
	got := waitNotification(t, ch)
	if got.Seq != 1 || got.Goal != GoalHome || got.Text != "1: Home" {
		t.Fatalf("unexpected first notification %+v", got)
	}

	time.Sleep(80 * time.Millisecond)
	sim.Shoot(SideAway)
	got = waitNotification(t, ch)
	if got.Seq != 2 || got.Text != "2: Away" {
		t.Fatalf("unexpected second notification %+v", got)
	}
	if got.SentAt.Before(got.DetectedAt) {
		t.Fatalf("sent before detected: %+v", got)
	}

	if v := counterValue(t, rt, "kickir_goals_away_total"); v != 1 {
		t.Fatalf("expected one away goal counted, got %f", v)
	}
}

func TestRuntimeThresholdChangeAffectsDetection(t *testing.T) {
	cfg := testConfig()
	sim := sensor.NewSimSensor(SimConfig{Baseline: 100}, cfg.Detector.Channels.Home, cfg.Detector.Channels.Away)
	snk, ch, closeSink := NewChannelSink("test", 8)
	defer closeSink()

	rt, err := NewRuntime(cfg, WithSensor(sim), WithSink(snk), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Shutdown(context.Background())

	time.Sleep(80 * time.Millisecond)
	select {
	case n := <-ch:
		t.Fatalf("baseline 100 must not trigger at threshold 50, got %+v", n)
	default:
	}

	if err := rt.SetThreshold("AWAY:101"); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if rt.Threshold(SideAway) != 101 {
		t.Fatalf("threshold not applied")
	}
	got := waitNotification(t, ch)
	if got.Goal != GoalAway {
		t.Fatalf("expected away goal after raising threshold, got %+v", got)
	}
}

func TestShutdownDrainsQueuedGoals(t *testing.T) {
	q := queue.NewMemQueue(0, DropOldest, nil)
	for _, g := range []DetectedGoal{GoalHome, GoalAway, GoalHome} {
		q.Push(GoalEvent{Goal: g, DetectedAt: time.Now()})
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	cb := NewCallbackSink("cb", func(n Notification) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, n.Text)
		mu.Unlock()
		return nil
	})

	rt, err := NewRuntime(testConfig(), WithSensor(&stubSensor{}), WithSink(cb), WithQueue(q), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"1: Home", "2: Away", "3: Home"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v delivered before shutdown returned, got %v", want, seen)
	}
}

func TestShutdownOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	s := &stubSensor{onClose: func() { record("sensor") }}
	sk := &stubSink{onClose: func() { record("sink") }}
	c := &stubControl{onStop: func() { record("control") }}

	rt, err := NewRuntime(testConfig(), WithSensor(s), WithSink(sk), WithControl(c), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.started {
		t.Fatalf("control endpoint should be started with the runtime")
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got %v", err)
	}

	if got := strings.Join(order, ","); got != "control,sink,sensor" {
		t.Fatalf("unexpected shutdown order %s", got)
	}
}

func TestRunReportsNotifierExit(t *testing.T) {
	rt, err := NewRuntime(testConfig(),
		WithSensor(&stubSensor{}),
		WithSink(&stubSink{}),
		WithQueue(&stubQueue{popErr: ErrQueueClosed}),
		WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	err = rt.Run(context.Background())
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from Run, got %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	rt, err := NewRuntime(testConfig(), WithSensor(&stubSensor{}), WithSink(&stubSink{}), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run should shut down cleanly, got %v", err)
	}
	if err := rt.Start(); err == nil {
		t.Fatalf("restarting a stopped runtime should fail")
	}
}

func TestAdminEndpoints(t *testing.T) {
	rt, err := NewRuntime(testConfig(), WithSensor(&stubSensor{}), WithSink(&stubSink{}), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	if got := getThresholds(t, srv.URL); got != (Thresholds{Home: 50, Away: 50}) {
		t.Fatalf("unexpected initial thresholds %+v", got)
	}

	if code := putThreshold(t, srv.URL, "away : 12"); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if got := getThresholds(t, srv.URL); got != (Thresholds{Home: 50, Away: 12}) {
		t.Fatalf("unexpected thresholds after update %+v", got)
	}

	for _, bad := range []string{"middle:1", "HOME:70000", strings.Repeat("x", 100)} {
		code := putThreshold(t, srv.URL, bad)
		if code != http.StatusBadRequest && code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected rejection for %q, got %d", bad, code)
		}
	}
	if got := getThresholds(t, srv.URL); got != (Thresholds{Home: 50, Away: 12}) {
		t.Fatalf("rejected writes changed thresholds: %+v", got)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"kickir_threshold_updates_total 1", "kickir_threshold_rejected_total 2"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}

	resp, err = http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/ws should not be mounted when websocket is disabled, got %d", resp.StatusCode)
	}
}

func waitNotification(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func getThresholds(t *testing.T, base string) Thresholds {
	t.Helper()
	resp, err := http.Get(base + "/thresholds")
	if err != nil {
		t.Fatalf("GET /thresholds: %v", err)
	}
	defer resp.Body.Close()
	var out Thresholds
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode thresholds: %v", err)
	}
	return out
}

func putThreshold(t *testing.T, base, body string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, base+"/thresholds", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /thresholds: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func counterValue(t *testing.T, rt *Runtime, name string) float64 {
	t.Helper()
	mfs, err := rt.Metrics().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

type stubSensor struct {
	mu      sync.Mutex
	closed  bool
	onClose func()
}

func (s *stubSensor) Read(domain.Channel) (domain.Intensity, error) { return 1000, nil }
func (s *stubSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

type stubSink struct {
	onClose func()
}

func (s *stubSink) Send(context.Context, Notification) error { return nil }
func (s *stubSink) Name() string                             { return "stub" }
func (s *stubSink) Close() error {
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

type stubQueue struct {
	popErr error
}

func (s *stubQueue) Push(GoalEvent) bool { return true }
func (s *stubQueue) Pop(ctx context.Context) (GoalEvent, error) {
	if s.popErr != nil {
		return GoalEvent{}, s.popErr
	}
	<-ctx.Done()
	return GoalEvent{}, ctx.Err()
}
func (s *stubQueue) Close()   {}
func (s *stubQueue) Len() int { return 0 }

type stubControl struct {
	started bool
	onStop  func()
}

func (s *stubControl) Start(ControlHandler) error { s.started = true; return nil }
func (s *stubControl) Stop() error {
	if s.onStop != nil {
		s.onStop()
	}
	return nil
}

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)            {}
func (s *stubObservability) LogError(string, error, ...Field)    {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64)          {}
func (s *stubObservability) ObserveLatency(string, float64)      {}
func (s *stubObservability) SetGauge(string, float64)            {}
