// Package orchestrator is the per-workspace worker loop: it claims jobs
// from the durable queue, provisions an isolated worktree, invokes the
// agent facade, captures its streamed output, reconciles the result back
// to git/PR, and publishes lifecycle events for every stage. One
// Orchestrator runs per workspace; multiple may run concurrently across
// workspaces.
package orchestrator

import (
	"context"
	"time"

	"github.com/h4mn/skybridge/agentfacade"
	"github.com/h4mn/skybridge/jobqueue"
)

// AutonomyLevel gates which pipeline stages actually run, per spec.md
// §4.9.
type AutonomyLevel string

const (
	Analysis    AutonomyLevel = "ANALYSIS"
	Development AutonomyLevel = "DEVELOPMENT"
	Review      AutonomyLevel = "REVIEW"
	Publish     AutonomyLevel = "PUBLISH"
)

// retryLadder is the explicit 60s/300s/900s schedule from spec.md §4.9,
// indexed by attempt. The spec pins exact values rather than a formula, so
// this is a table, not a roko.Exponential strategy.
var retryLadder = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

const maxAttempts = len(retryLadder)

// PRCreator is the optional pull-request creation hook from spec.md §4.9
// step 8c. A nil PRCreator means no PR surface is configured; the
// orchestrator simply skips that step.
type PRCreator interface {
	CreatePR(ctx context.Context, job jobqueue.WebhookJob, result agentfacade.AgentResult) (prURL string, err error)
}

// SpawnContextBuilder derives an agentfacade.SpawnContext from a job,
// resolving repo/issue metadata the job's parsed event payload carries.
// Kept as an injected function rather than a fixed implementation because
// the shape of "issue_title"/"repo_name" is source-specific and owned by
// whatever normalized the webhook in webhookintake.
type SpawnContextBuilder func(job jobqueue.WebhookJob, worktreePath, branchName string) agentfacade.SpawnContext
