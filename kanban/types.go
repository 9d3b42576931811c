// Package kanban is a pure, event-driven projection into a per-workspace
// SQLite board: operators read it to see live job progress, but nothing
// writes to it except the domain event subscriptions wired up in
// subscribe.go (plus the CRUD surface mounted by httpapi).
package kanban

import "time"

// DefaultLists are bootstrapped on first use of a board. There is no
// implicit default among them: mutation operations that don't specify a
// target list fail explicitly with ErrListNotSpecified.
var DefaultLists = []string{"Issues", "Brainstorm", "A Fazer", "Em Andamento", "Em Revisão", "Publicar"}

// Board is the top-level container for a workspace's lists.
type Board struct {
	ID   int64
	Name string
}

// List is one column on a board.
type List struct {
	ID       int64
	BoardID  int64
	Name     string
	Position int
}

// Card is the projection of one issue/job.
type Card struct {
	ID                   int64
	ListID               int64
	Title                string
	Description          string
	Position             int
	Labels               []string
	BeingProcessed       bool
	ProcessingStartedAt  *time.Time
	ProcessingJobID      string
	ProcessingStep       int
	ProcessingTotalSteps int
	IssueNumber          string
	IssueURL             string
	Author               string
	PRURL                string
	ErroReason           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HistoryEvent names the kind of change recorded in CardHistory.
type HistoryEvent string

const (
	EventCreated             HistoryEvent = "created"
	EventMoved               HistoryEvent = "moved"
	EventProcessingStarted   HistoryEvent = "processing_started"
	EventProcessingCompleted HistoryEvent = "processing_completed"
	EventProcessingFailed    HistoryEvent = "processing_failed"
	EventUpdated             HistoryEvent = "updated"
	EventDeleted             HistoryEvent = "deleted"
)

// CardHistoryEntry is one append-only row in a card's audit trail.
type CardHistoryEntry struct {
	ID         int64
	CardID     int64
	Event      HistoryEvent
	FromListID *int64
	ToListID   *int64
	Metadata   string
	OccurredAt time.Time
}

// CardFilter narrows ListCards.
type CardFilter struct {
	ListID         int64 // 0 means any list
	BeingProcessed *bool
}
