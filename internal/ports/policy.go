package ports

import (
	"fmt"
	"time"
)

const (
	DropNewest = "drop_newest"
	DropOldest = "drop_oldest"
)

type Policy struct {
	// MaxQueueLen bounds the goal queue; 0 keeps it unbounded.
	MaxQueueLen int    `yaml:"max_queue_len"`
	OnQueueFull string `yaml:"on_queue_full"` // "drop_newest", "drop_oldest"

	GaugeInterval time.Duration `yaml:"gauge_interval"`
}

func (p Policy) Validate() error {
	if p.MaxQueueLen < 0 {
		return fmt.Errorf("max_queue_len must be >= 0")
	}
	switch p.OnQueueFull {
	case DropNewest, DropOldest:
		return nil
	default:
		return fmt.Errorf("on_queue_full %q not supported (want %s or %s)", p.OnQueueFull, DropNewest, DropOldest)
	}
}
