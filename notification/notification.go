// Package notification subscribes to job completion/failure events and
// dispatches them to a configurable set of outbound channels. A failing
// channel is logged and never propagated — per spec.md §4.11, notification
// delivery never affects job outcome.
package notification

import (
	"context"
	"time"

	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/logger"
)

// Channel is one outbound notification destination. Implementations must
// not block indefinitely; Dispatch gives each channel a bounded context.
type Channel interface {
	Name() string
	Notify(ctx context.Context, event domainevent.Event) error
}

// defaultTimeout is the per-channel network timeout from spec.md §5.
const defaultTimeout = 30 * time.Second

// Sink subscribes to JobCompleted/JobFailed and fans out to every
// registered Channel.
type Sink struct {
	log      logger.Logger
	channels []Channel
	timeout  time.Duration
}

// New returns a Sink that dispatches to channels whenever it observes
// JobCompleted or JobFailed on bus.
func New(l logger.Logger, channels ...Channel) *Sink {
	return &Sink{log: l, channels: channels, timeout: defaultTimeout}
}

// Subscribe wires the sink onto bus.
func (s *Sink) Subscribe(bus *domainevent.Bus) {
	bus.Subscribe(domainevent.JobCompleted, s.dispatch)
	bus.Subscribe(domainevent.JobFailed, s.dispatch)
}

func (s *Sink) dispatch(event domainevent.Event) {
	for _, ch := range s.channels {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := ch.Notify(ctx, event)
		cancel()
		if err != nil {
			s.log.Error("notification: channel %s failed for %s %s: %v", ch.Name(), event.EventType, event.AggregateID, err)
		}
	}
}
