// Package detector turns raw light-gate samples into debounced goal events.
package detector

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
	"github.com/teschmitt/kickir/internal/threshold"
)

// DefaultCooldown is the minimum gap between two recognised goals.
const DefaultCooldown = 2 * time.Second

// Channels maps each side to its two redundant beams.
type Channels struct {
	Home [2]domain.Channel `yaml:"home"`
	Away [2]domain.Channel `yaml:"away"`
}

// DefaultChannels wires channels 0/1 to home and 2/3 to away.
var DefaultChannels = Channels{
	Home: [2]domain.Channel{0, 1},
	Away: [2]domain.Channel{2, 3},
}

func (c Channels) of(side domain.Side) [2]domain.Channel {
	if side == domain.SideAway {
		return c.Away
	}
	return c.Home
}

type Option func(*GoalDetector)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *GoalDetector) {
		if now != nil {
			d.now = now
		}
	}
}

func WithCooldown(cd time.Duration) Option {
	return func(d *GoalDetector) {
		if cd > 0 {
			d.cooldown = cd
		}
	}
}

func WithChannels(c Channels) Option {
	return func(d *GoalDetector) {
		d.channels = c
	}
}

// WithErrorLogInterval limits how often sensor failures are logged. Every
// failure is still counted. A non-positive interval logs each one.
func WithErrorLogInterval(every time.Duration) Option {
	return func(d *GoalDetector) {
		if every <= 0 {
			d.errLog = rate.Sometimes{Every: 1}
			return
		}
		d.errLog = rate.Sometimes{Interval: every}
	}
}

// GoalDetector is the debounce state machine. It is owned by the scan worker
// and is not safe for concurrent use; the threshold store is the only part
// shared with other goroutines.
type GoalDetector struct {
	sensor   ports.Sensor
	store    *threshold.Store
	obs      ports.Observability
	channels Channels
	cooldown time.Duration
	now      func() time.Time
	errLog   rate.Sometimes

	lastGoal time.Time
}

// New builds a detector whose cooldown starts running immediately, so no
// goal can be reported during the first window after startup.
func New(sensor ports.Sensor, store *threshold.Store, obs ports.Observability, opts ...Option) *GoalDetector {
	d := &GoalDetector{
		sensor:   sensor,
		store:    store,
		obs:      obs,
		channels: DefaultChannels,
		cooldown: DefaultCooldown,
		now:      time.Now,
		errLog:   rate.Sometimes{Interval: time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.lastGoal = d.now()
	return d
}

// Scan reads the gate once and reports at most one goal. It never fails:
// a sensor fault is logged and yields GoalNone. Scan does not move the
// cooldown anchor; the caller must call ResetCooldown when it accepts a goal.
func (d *GoalDetector) Scan() domain.DetectedGoal {
	if d.now().Sub(d.lastGoal) < d.cooldown {
		return domain.GoalNone
	}

	home, err := d.sideTriggered(domain.SideHome)
	if err != nil {
		d.sensorFailed(domain.SideHome, err)
		return domain.GoalNone
	}
	away, err := d.sideTriggered(domain.SideAway)
	if err != nil {
		d.sensorFailed(domain.SideAway, err)
		return domain.GoalNone
	}

	switch {
	case home:
		return domain.GoalHome
	case away:
		return domain.GoalAway
	default:
		return domain.GoalNone
	}
}

// ResetCooldown anchors the debounce window at the current time.
func (d *GoalDetector) ResetCooldown() {
	d.lastGoal = d.now()
}

// LastGoal returns the current cooldown anchor.
func (d *GoalDetector) LastGoal() time.Time {
	return d.lastGoal
}

// Cooldown returns the configured debounce window.
func (d *GoalDetector) Cooldown() time.Duration {
	return d.cooldown
}

// sideTriggered reads both beams of side. Both are always read so that a
// fault on either one surfaces, even when the other is already interrupted.
func (d *GoalDetector) sideTriggered(side domain.Side) (bool, error) {
	limit := d.store.Get(side)
	triggered := false
	for _, ch := range d.channels.of(side) {
		v, err := d.sensor.Read(ch)
		if err != nil {
			return false, fmt.Errorf("read %s channel %d: %w", side, ch, err)
		}
		if domain.ThreshValue(v) < limit {
			triggered = true
		}
	}
	return triggered, nil
}

func (d *GoalDetector) sensorFailed(side domain.Side, err error) {
	d.obs.IncCounter(ports.MetricSensorErrors, 1)
	d.errLog.Do(func() {
		d.obs.LogError("sensor_read_failed", err, ports.Field{Key: "side", Value: side.String()})
	})
}
