package ports

import "github.com/teschmitt/kickir/internal/domain"

// Sensor samples light intensity from a physical channel.
type Sensor interface {
	Read(ch domain.Channel) (domain.Intensity, error)
	Close() error
}
