package control

import (
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
	"github.com/teschmitt/kickir/internal/threshold"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSControlAppliesWrites(t *testing.T) {
	url := startTestNATS(t)
	obs := &mockObs{}

	nc, err := Connect(url, obs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer nc.Close()

	store := threshold.NewStore(threshold.DefaultValue)
	ctl := NewNATSControl(nc, "")
	if err := ctl.Start(threshold.NewProtocol(store, obs)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctl.Stop()

	client, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting client: %v", err)
	}
	defer client.Close()

	for _, raw := range []string{"middle:40", "away : 35", "HOME:12"} {
		if err := client.Publish(DefaultThresholdSubject, []byte(raw)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	client.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Get(domain.SideHome) == 12 && store.Get(domain.SideAway) == 35 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if store.Get(domain.SideHome) != 12 || store.Get(domain.SideAway) != 35 {
		t.Fatalf("unexpected store after writes: %v", store.Snapshot())
	}
	if obs.count(ports.MetricThresholdRejected) != 1 {
		t.Fatalf("expected the malformed write to be rejected once")
	}
}

func TestNATSControlStartTwiceAndStop(t *testing.T) {
	url := startTestNATS(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	ctl := NewNATSControl(nc, "ctl")
	h := threshold.NewProtocol(threshold.NewStore(threshold.DefaultValue), &mockObs{})
	if err := ctl.Start(nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if err := ctl.Start(h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctl.Start(h); err == nil {
		t.Fatalf("expected error on second Start")
	}
	if err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := ctl.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1", &mockObs{}, nats.Timeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected connect error")
	}
}

type mockObs struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (m *mockObs) LogInfo(string, ...ports.Field)            {}
func (m *mockObs) LogError(string, error, ...ports.Field)    {}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}

func (m *mockObs) count(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}
