package ports

import (
	"context"

	"github.com/teschmitt/kickir/internal/domain"
)

// Sink delivers numbered goal notifications to subscribers.
type Sink interface {
	Send(ctx context.Context, n domain.Notification) error
	Name() string
	Close() error
}

// ControlHandler accepts raw threshold-control writes from a remote client.
type ControlHandler interface {
	HandleWrite(raw []byte) error
}

// ControlEndpoint feeds inbound control writes into a ControlHandler until stopped.
type ControlEndpoint interface {
	Start(h ControlHandler) error
	Stop() error
}
