// Package sensor holds the light-gate sample sources that run without a
// fieldbus: the Linux IIO ADC and a simulator.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// IIOConfig selects an industrial-I/O ADC and maps logical channels to its
// inputs. A channel missing from Inputs reads in_voltage<channel>_raw.
type IIOConfig struct {
	Device string                 `yaml:"device"`
	Inputs map[domain.Channel]int `yaml:"inputs"`
}

const defaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// IIOSensor samples in_voltageN_raw attributes. Files stay open and are
// re-read from offset 0 so a scan does no path lookups.
type IIOSensor struct {
	mu     sync.Mutex
	files  map[domain.Channel]*os.File
	buf    [16]byte
	closed bool
}

// NewIIOSensor opens the raw attribute of every listed channel.
func NewIIOSensor(cfg IIOConfig, channels []domain.Channel) (*IIOSensor, error) {
	dev := cfg.Device
	if dev == "" {
		dev = defaultIIODevice
	}

	s := &IIOSensor{files: make(map[domain.Channel]*os.File, len(channels))}
	for _, ch := range channels {
		if _, ok := s.files[ch]; ok {
			continue
		}
		input := int(ch)
		if in, ok := cfg.Inputs[ch]; ok {
			input = in
		}
		path := filepath.Join(dev, fmt.Sprintf("in_voltage%d_raw", input))
		f, err := os.Open(path)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open adc channel %d: %w", ch, err)
		}
		s.files[ch] = f
	}
	return s, nil
}

func (s *IIOSensor) Read(ch domain.Channel) (domain.Intensity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("iio sensor closed")
	}
	f, ok := s.files[ch]
	if !ok {
		return 0, fmt.Errorf("adc channel %d not opened", ch)
	}

	n, err := f.ReadAt(s.buf[:], 0)
	if n == 0 && err != nil {
		return 0, fmt.Errorf("read adc channel %d: %w", ch, err)
	}
	return parseRaw(string(s.buf[:n]))
}

func (s *IIOSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for ch, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, ch)
	}
	return errors.Join(errs...)
}

func parseRaw(raw string) (domain.Intensity, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse adc sample %q: %w", strings.TrimSpace(raw), err)
	}
	switch {
	case v < 0:
		return 0, nil
	case v > math.MaxUint16:
		return math.MaxUint16, nil
	}
	return domain.Intensity(v), nil
}

var _ ports.Sensor = (*IIOSensor)(nil)
