package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// Fanout delivers each notification to every member concurrently. A member
// failure does not stop delivery to the others.
type Fanout struct {
	sinks []ports.Sink
}

func NewFanout(sinks ...ports.Sink) *Fanout {
	out := make([]ports.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

// Len reports the number of member sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Send(ctx context.Context, n domain.Notification) error {
	if len(f.sinks) == 1 {
		return f.sinks[0].Send(ctx, n)
	}

	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		go func(i int, s ports.Sink) {
			defer wg.Done()
			if err := s.Send(ctx, n); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ ports.Sink = (*Fanout)(nil)
