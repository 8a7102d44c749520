package sensor

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// SimConfig drives the simulator. With GoalEvery set, one side chosen at
// random is darkened for Pulse every GoalEvery.
type SimConfig struct {
	Baseline  domain.Intensity `yaml:"baseline"`
	Dark      domain.Intensity `yaml:"dark"`
	Noise     domain.Intensity `yaml:"noise"`
	GoalEvery time.Duration    `yaml:"goal_every"`
	Pulse     time.Duration    `yaml:"pulse"`
}

func (c *SimConfig) ApplyDefaults() {
	if c.Baseline == 0 {
		c.Baseline = 800
	}
	if c.Pulse <= 0 {
		c.Pulse = 100 * time.Millisecond
	}
}

// SimSensor is an in-memory light gate. Every channel reads Baseline
// (plus noise) unless it is blocked.
type SimSensor struct {
	cfg      SimConfig
	channels detectorChannels
	now      func() time.Time
	start    time.Time

	mu      sync.Mutex
	blocked map[domain.Channel]time.Time
	failing map[domain.Channel]error
}

type detectorChannels struct {
	Home [2]domain.Channel
	Away [2]domain.Channel
}

// NewSimSensor builds a simulator; home and away name the beams the
// automatic pulses darken.
func NewSimSensor(cfg SimConfig, home, away [2]domain.Channel) *SimSensor {
	cfg.ApplyDefaults()
	return &SimSensor{
		cfg:      cfg,
		channels: detectorChannels{Home: home, Away: away},
		now:      time.Now,
		start:    time.Now(),
		blocked:  make(map[domain.Channel]time.Time),
		failing:  make(map[domain.Channel]error),
	}
}

// Block darkens ch for d.
func (s *SimSensor) Block(ch domain.Channel, d time.Duration) {
	s.mu.Lock()
	s.blocked[ch] = s.now().Add(d)
	s.mu.Unlock()
}

// Shoot darkens the first beam of side for the configured pulse.
func (s *SimSensor) Shoot(side domain.Side) {
	beams := s.channels.Home
	if side == domain.SideAway {
		beams = s.channels.Away
	}
	s.Block(beams[0], s.cfg.Pulse)
}

// Fail makes reads of ch return err until cleared with a nil err.
func (s *SimSensor) Fail(ch domain.Channel, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, ch)
		return
	}
	s.failing[ch] = err
}

func (s *SimSensor) Read(ch domain.Channel) (domain.Intensity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing[ch]; err != nil {
		return 0, err
	}

	now := s.now()
	if until, ok := s.blocked[ch]; ok {
		if now.Before(until) {
			return s.cfg.Dark, nil
		}
		delete(s.blocked, ch)
	}
	if s.autoPulse(ch, now) {
		return s.cfg.Dark, nil
	}

	v := s.cfg.Baseline
	if s.cfg.Noise > 0 {
		v += domain.Intensity(rand.IntN(int(s.cfg.Noise) + 1))
	}
	return v, nil
}

func (s *SimSensor) Close() error { return nil }

// autoPulse reports whether ch sits inside the current automatic pulse.
// The side of each pulse is derived from the pulse index so every beam of
// that side agrees.
func (s *SimSensor) autoPulse(ch domain.Channel, now time.Time) bool {
	if s.cfg.GoalEvery <= 0 {
		return false
	}
	elapsed := now.Sub(s.start)
	if elapsed < s.cfg.GoalEvery {
		return false
	}
	idx := int64(elapsed / s.cfg.GoalEvery)
	if elapsed-time.Duration(idx)*s.cfg.GoalEvery >= s.cfg.Pulse {
		return false
	}
	beams := s.channels.Home
	if rand.New(rand.NewPCG(uint64(idx), 0)).IntN(2) == 1 {
		beams = s.channels.Away
	}
	return ch == beams[0] || ch == beams[1]
}

var _ ports.Sensor = (*SimSensor)(nil)
