// Package agentfacade owns the lifetime of one agent subprocess invocation:
// it renders the system prompt, launches the configured agent binary via
// the adapted process.Process runner, streams stdout through
// agentprotocol.Parser, and enforces the per-skill timeout.
package agentfacade

import "time"

// State is the lifecycle state of one AgentExecution.
type State string

const (
	Created  State = "CREATED"
	Running  State = "RUNNING"
	Complete State = "COMPLETED"
	TimedOut State = "TIMED_OUT"
	Crashed  State = "FAILED"
)

// ExitReason supplements State with the terminal reason the subprocess
// actually exited for, mirroring how the adapted process package surfaces
// signal/exit-code information.
type ExitReason string

const (
	ExitReasonCompleted ExitReason = "completed"
	ExitReasonTimeout   ExitReason = "timeout"
	ExitReasonCrash     ExitReason = "crash"
	ExitReasonShutdown  ExitReason = "shutdown"
)

// ThinkingStep is one entry in an execution's append-only progress log,
// derived from progress/checkpoint/log control frames.
type ThinkingStep struct {
	Step       int           `json:"step"`
	Timestamp  time.Time     `json:"timestamp"`
	DurationMS int64         `json:"duration_ms"`
	Thought    string        `json:"thought"`
}

// CommandReceived is one control frame as parsed from the subprocess,
// recorded verbatim for audit/debugging.
type CommandReceived struct {
	Name      string    `json:"name"`
	Params    map[string]string `json:"params"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentResult is the outcome of a successful execution, decoded from the
// agent's final JSON stdout object.
type AgentResult struct {
	Success       bool     `json:"success"`
	ChangesMade   bool     `json:"changes_made"`
	FilesCreated  []string `json:"files_created,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	FilesDeleted  []string `json:"files_deleted,omitempty"`
	CommitHash    string   `json:"commit_hash,omitempty"`
	PRURL         string   `json:"pr_url,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// SpawnContext is the template-substitution context and working directory
// for one agent invocation.
type SpawnContext struct {
	WorktreePath  string
	IssueNumber   string
	IssueTitle    string
	RepoName      string
	BranchName    string
	Skill         string
	CorrelationID string
}

// AgentExecution is the runtime record of one agent invocation.
type AgentExecution struct {
	ExecutionID      string
	JobID            string
	Skill            string
	AgentKind        string
	State            State
	ExitReason       ExitReason
	TimeoutSeconds   int
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	ThinkingSteps    []ThinkingStep
	CommandsReceived []CommandReceived
	FinalResult      *AgentResult
	ErrorMessage     string
}
