// Package domainevent is the in-process publish/subscribe fabric that
// decouples intake, orchestration, notifications, metrics, and kanban
// projection. One Bus is owned per workspace; cross-workspace traffic is
// disallowed by construction (each workspace gets its own Bus instance).
package domainevent

import (
	"time"

	"github.com/google/uuid"
)

// Type is a closed set of event type names. Keeping it a defined string
// type (rather than free-form strings) lets callers switch on kind without
// typos silently dropping handlers.
type Type string

const (
	IssueReceived    Type = "IssueReceived"
	JobCreated       Type = "JobCreated"
	JobStarted       Type = "JobStarted"
	JobCommitted     Type = "JobCommitted"
	JobPushed        Type = "JobPushed"
	PRCreated        Type = "PRCreated"
	JobCompleted     Type = "JobCompleted"
	JobFailed        Type = "JobFailed"
	JobRetried       Type = "JobRetried"
	JobProgress      Type = "JobProgress"
	WorktreeRemoved  Type = "WorktreeRemoved"
	WorktreeRetained Type = "WorktreeRetained"

	TrelloCardCreated     Type = "TrelloCardCreated"
	TrelloCardUpdated     Type = "TrelloCardUpdated"
	TrelloCardMovedToList Type = "TrelloCardMovedToList"

	DeployCompleted Type = "DeployCompleted"
	DeployFailed    Type = "DeployFailed"
)

// Event is an immutable fact once published.
type Event struct {
	EventID       string
	OccurredAt    time.Time
	AggregateID   string
	AggregateType string
	EventType     Type
	Payload       map[string]any
	CorrelationID string
}

// New builds an Event with a fresh EventID and OccurredAt set to now.
func New(eventType Type, aggregateType, aggregateID, correlationID string, payload map[string]any) Event {
	return Event{
		EventID:       uuid.NewString(),
		OccurredAt:    time.Now(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CorrelationID: correlationID,
	}
}
