package jobqueue

import (
	"encoding/json"
	"time"
)

// Status is the job lifecycle state. Status progresses monotonically
// (PENDING -> PROCESSING -> COMPLETED|FAILED) except via the explicit retry
// transition, which creates a brand new job record rather than rewinding
// this one.
type Status string

const (
	Pending    Status = "PENDING"
	Processing Status = "PROCESSING"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
)

// WebhookEvent is the received, normalized payload that a WebhookJob wraps.
type WebhookEvent struct {
	EventID       string          `json:"event_id"`
	Source        string          `json:"source"`
	EventType     string          `json:"event_type"`
	ReceivedAt    time.Time       `json:"received_at"`
	RawBytes      []byte          `json:"raw_bytes"`
	Parsed        json.RawMessage `json:"parsed"`
	CorrelationID string          `json:"correlation_id"`
}

// WebhookJob is the durable unit of work the queue persists and the
// orchestrator drives to a terminal status.
type WebhookJob struct {
	JobID            string       `json:"job_id"`
	Event            WebhookEvent `json:"event"`
	Skill            string       `json:"skill"`
	Status           Status       `json:"status"`
	WorktreePath     string       `json:"worktree_path,omitempty"`
	BranchName       string       `json:"branch_name,omitempty"`
	AgentExecutionID string       `json:"agent_execution_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	Attempt          int          `json:"attempt"`
	LastError        string       `json:"last_error,omitempty"`

	// RetryOf links a retried job back to the job it supersedes, for
	// operator-surface traceability. Does not affect idempotency, which is
	// keyed on the regenerated JobID per attempt.
	RetryOf string `json:"retry_of,omitempty"`
}

// CompletionResult is what Complete persists alongside a terminal success.
// Result and the two snapshots are opaque JSON from the queue's point of
// view — agentfacade and snapshot own their concrete shapes.
type CompletionResult struct {
	CompletedAt     time.Time       `json:"completed_at"`
	Result          json.RawMessage `json:"result"`
	SnapshotBefore  json.RawMessage `json:"snapshot_before,omitempty"`
	SnapshotAfter   json.RawMessage `json:"snapshot_after,omitempty"`
}

// FailureDetail is what Fail persists alongside a terminal failure.
type FailureDetail struct {
	FailedAt   time.Time `json:"failed_at"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	StderrTail string    `json:"stderr_tail,omitempty"`
	Attempt    int       `json:"attempt"`
}

type completedRecord struct {
	WebhookJob
	CompletionResult
}

type failedRecord struct {
	WebhookJob
	Error FailureDetail `json:"error"`
}
