package pipeline

import (
	"runtime"

	"github.com/teschmitt/kickir/internal/ports"
)

// Affinity places a worker on one CPU at a given nice level. CPU -1 leaves
// placement to the scheduler.
type Affinity struct {
	CPU  int `yaml:"cpu"`
	Nice int `yaml:"nice"`
}

var (
	ScanAffinity   = Affinity{CPU: 1, Nice: -10}
	NotifyAffinity = Affinity{CPU: 0, Nice: 0}
)

// PinWorker locks the calling goroutine to its OS thread and applies a.
// Failures are logged and the worker keeps running unpinned. The caller
// must not return the thread to the pool while the worker runs.
func PinWorker(worker string, a Affinity, obs ports.Observability) {
	runtime.LockOSThread()
	if a.CPU < 0 {
		return
	}
	if err := setAffinity(a.CPU); err != nil {
		obs.LogError("worker_pin_failed", err,
			ports.Field{Key: "worker", Value: worker},
			ports.Field{Key: "cpu", Value: a.CPU})
	}
	if err := setNice(a.Nice); err != nil {
		obs.LogError("worker_priority_failed", err,
			ports.Field{Key: "worker", Value: worker},
			ports.Field{Key: "nice", Value: a.Nice})
	}
}
