package notification

import (
	"context"

	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/logger"
)

// LogChannel writes every notified event through the shared logger. It is
// the always-on fallback channel: it cannot itself fail in a way worth
// reporting.
type LogChannel struct {
	log logger.Logger
}

// NewLogChannel returns a Channel that logs at INFO (JobCompleted) or WARN
// (JobFailed).
func NewLogChannel(l logger.Logger) *LogChannel {
	return &LogChannel{log: l}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Notify(_ context.Context, event domainevent.Event) error {
	if event.EventType == domainevent.JobFailed {
		c.log.Warn("notification: job %s failed: %v", event.AggregateID, event.Payload["message"])
		return nil
	}
	c.log.Info("notification: job %s completed", event.AggregateID)
	return nil
}
