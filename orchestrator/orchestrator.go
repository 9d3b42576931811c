package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/h4mn/skybridge/agentfacade"
	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/snapshot"
	"github.com/h4mn/skybridge/workspace"
	"github.com/h4mn/skybridge/worktree"
)

// Config configures one Orchestrator.
type Config struct {
	Worktree     *worktree.Manager
	Snapshot     *snapshot.Service
	Facade       *agentfacade.Facade
	BuildContext SpawnContextBuilder
	PRCreator    PRCreator // nil disables step 8c entirely
	Autonomy     AutonomyLevel
}

// Orchestrator is the worker loop for one workspace, modeled on the
// teacher's AgentWorker main-loop shape: poll, claim, run, report, loop
// until told to stop.
type Orchestrator struct {
	log logger.Logger
	ws  *workspace.Workspace
	cfg Config
}

// New returns an Orchestrator driving ws's queue.
func New(l logger.Logger, ws *workspace.Workspace, cfg Config) *Orchestrator {
	if cfg.Autonomy == "" {
		cfg.Autonomy = Development
	}
	return &Orchestrator{log: l, ws: ws, cfg: cfg}
}

// Run blocks, processing jobs until ctx is cancelled. On cancellation, an
// in-flight agent is interrupted (and killed if it outlives agentfacade's
// signal grace period), and its job is recorded as failed with type
// "shutdown" (ErrShutdown), without a retry.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.log.Notice("orchestrator: %s: shutting down", o.ws.ID)
			return
		default:
		}

		job, err := o.ws.Queue.WaitForDequeue(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Error("orchestrator: %s: dequeue: %v", o.ws.ID, err)
			continue
		}
		if job == nil {
			continue
		}

		o.process(ctx, *job)
	}
}

func (o *Orchestrator) process(ctx context.Context, job jobqueue.WebhookJob) {
	now := time.Now()
	job.Status = jobqueue.Processing
	job.StartedAt = &now

	issueNumber := externalIDFromParsed(job.Event.Parsed)
	o.ws.Bus.Publish(domainevent.New(domainevent.JobStarted, "job", job.JobID, job.Event.CorrelationID, map[string]any{
		"job_id":       job.JobID,
		"skill":        job.Skill,
		"issue_number": issueNumber,
	}))

	if o.cfg.Autonomy == Review {
		// REVIEW autonomy is a no-op placeholder: publish and complete
		// without touching git or spawning an agent.
		if err := o.ws.Queue.Complete(job.JobID, jobqueue.CompletionResult{Result: json.RawMessage(`{"success":true,"changes_made":false,"message":"review-only, no action taken"}`)}); err != nil {
			o.log.Error("orchestrator: %s: completing review-only job %s: %v", o.ws.ID, job.JobID, err)
		}
		o.ws.Bus.Publish(domainevent.New(domainevent.JobCompleted, "job", job.JobID, job.Event.CorrelationID, map[string]any{"job_id": job.JobID}))
		return
	}

	externalID := issueNumber
	wt, err := o.cfg.Worktree.Create(ctx, job.Event.Source, job.Event.EventType, externalID, shortHashOf(job.JobID))
	if err != nil {
		o.fail(ctx, job, "WorktreeCreationFailed", err)
		return
	}
	job.WorktreePath = wt.Path
	job.BranchName = wt.Branch

	snapBefore, err := o.cfg.Snapshot.Capture(ctx, wt.Path)
	if err != nil {
		o.fail(ctx, job, "WorktreeCreationFailed", err)
		return
	}

	spawnCtx := o.cfg.BuildContext(job, wt.Path, wt.Branch)
	spawnCtx.Skill = job.Skill
	spawnCtx.CorrelationID = job.Event.CorrelationID

	execution, err := o.cfg.Facade.Spawn(ctx, job.JobID, spawnCtx, 0)
	o.publishThinkingSteps(job, execution)

	if err != nil || execution.State != agentfacade.Complete {
		if ctx.Err() != nil {
			o.fail(ctx, job, "shutdown", fmt.Errorf("%w: %v", ErrShutdown, err))
			return
		}
		o.fail(ctx, job, string(execution.State), err)
		return
	}

	o.complete(ctx, job, wt, snapBefore, execution)
}

// publishThinkingSteps re-publishes an execution's collected thinking steps
// as JobProgress events, so kanban can update processing_step/
// processing_total_steps per spec.md §4.9 step 7. Safe to call with a nil
// execution (e.g. the agent never started).
func (o *Orchestrator) publishThinkingSteps(job jobqueue.WebhookJob, execution *agentfacade.AgentExecution) {
	if execution == nil || len(execution.ThinkingSteps) == 0 {
		return
	}
	last := execution.ThinkingSteps[len(execution.ThinkingSteps)-1]
	o.ws.Bus.Publish(domainevent.New(domainevent.JobProgress, "job", job.JobID, job.Event.CorrelationID, map[string]any{
		"job_id":      job.JobID,
		"step":        last.Step,
		"total_steps": len(execution.ThinkingSteps),
	}))
}

func (o *Orchestrator) complete(ctx context.Context, job jobqueue.WebhookJob, wt *worktree.Worktree, snapBefore *snapshot.Snapshot, execution *agentfacade.AgentExecution) {
	result := execution.FinalResult

	if result.ChangesMade && o.cfg.Autonomy != Analysis {
		hash, err := commitAndPush(ctx, o.log, wt.Path, wt.Branch, commitMessage(result))
		if err != nil {
			o.fail(ctx, job, "PushRejected", err)
			return
		}
		result.CommitHash = hash
		o.ws.Bus.Publish(domainevent.New(domainevent.JobCommitted, "job", job.JobID, job.Event.CorrelationID, map[string]any{"job_id": job.JobID, "commit_hash": hash}))
		o.ws.Bus.Publish(domainevent.New(domainevent.JobPushed, "job", job.JobID, job.Event.CorrelationID, map[string]any{"job_id": job.JobID, "branch": wt.Branch}))

		if o.cfg.PRCreator != nil && o.cfg.Autonomy == Publish {
			prURL, err := o.cfg.PRCreator.CreatePR(ctx, job, *result)
			if err != nil {
				o.fail(ctx, job, "PRCreationFailed", fmt.Errorf("%w: %v", ErrPRCreationFailed, err))
				return
			}
			result.PRURL = prURL
			o.ws.Bus.Publish(domainevent.New(domainevent.PRCreated, "job", job.JobID, job.Event.CorrelationID, map[string]any{"job_id": job.JobID, "pr_url": prURL}))
		}
	}

	snapAfter, err := o.cfg.Snapshot.Capture(ctx, wt.Path)
	if err != nil {
		o.log.Warn("orchestrator: %s: capturing after-snapshot for %s: %v", o.ws.ID, job.JobID, err)
		snapAfter = snapBefore
	}

	validation, err := o.cfg.Worktree.ValidateRemoval(ctx, wt.Name)
	if err != nil {
		o.log.Warn("orchestrator: %s: validating removal of %s: %v", o.ws.ID, wt.Name, err)
	} else if validation.CanRemove {
		if err := o.cfg.Worktree.Remove(ctx, wt.Name); err != nil {
			o.log.Warn("orchestrator: %s: removing worktree %s: %v", o.ws.ID, wt.Name, err)
		} else {
			o.ws.Bus.Publish(domainevent.New(domainevent.WorktreeRemoved, "worktree", wt.Name, job.Event.CorrelationID, nil))
		}
	} else {
		o.ws.Bus.Publish(domainevent.New(domainevent.WorktreeRetained, "worktree", wt.Name, job.Event.CorrelationID, map[string]any{"reason": validation.Reason}))
	}

	resultJSON, _ := json.Marshal(result)
	snapBeforeJSON, _ := json.Marshal(snapBefore)
	snapAfterJSON, _ := json.Marshal(snapAfter)

	if err := o.ws.Queue.Complete(job.JobID, jobqueue.CompletionResult{
		Result:         resultJSON,
		SnapshotBefore: snapBeforeJSON,
		SnapshotAfter:  snapAfterJSON,
	}); err != nil {
		o.log.Error("orchestrator: %s: completing job %s: %v", o.ws.ID, job.JobID, err)
		return
	}

	o.ws.Bus.Publish(domainevent.New(domainevent.JobCompleted, "job", job.JobID, job.Event.CorrelationID, map[string]any{"job_id": job.JobID}))
}

func (o *Orchestrator) fail(ctx context.Context, job jobqueue.WebhookJob, errType string, cause error) {
	message := errType
	if cause != nil {
		message = cause.Error()
	}

	if err := o.ws.Queue.Fail(job.JobID, jobqueue.FailureDetail{
		Message: message,
		Type:    errType,
		Attempt: job.Attempt,
	}); err != nil {
		o.log.Error("orchestrator: %s: recording failure for %s: %v", o.ws.ID, job.JobID, err)
	}

	canRetry := retryable(cause) && job.Attempt < maxAttempts
	o.ws.Bus.Publish(domainevent.New(domainevent.JobFailed, "job", job.JobID, job.Event.CorrelationID, map[string]any{
		"job_id":    job.JobID,
		"error_type": errType,
		"message":   message,
		"retryable": canRetry,
		"attempt":   job.Attempt,
	}))

	if !canRetry {
		return
	}

	go o.scheduleRetry(ctx, job)
}

// scheduleRetry waits the backoff period for job.Attempt, then re-enqueues
// a new job record with a regenerated job_id (so idempotency keys stay
// distinct per attempt) and attempt+1.
func (o *Orchestrator) scheduleRetry(ctx context.Context, job jobqueue.WebhookJob) {
	delay := retryLadder[job.Attempt]
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	retry := job
	retry.JobID = fmt.Sprintf("%s-%s-%s", job.Event.Source, job.Event.EventType, shortHashOf(job.JobID+"-retry"))
	retry.Attempt = job.Attempt + 1
	retry.RetryOf = job.JobID
	retry.Status = jobqueue.Pending
	retry.WorktreePath = ""
	retry.BranchName = ""
	retry.StartedAt = nil
	retry.CompletedAt = nil
	retry.LastError = ""

	if _, err := o.ws.Queue.Enqueue(retry); err != nil {
		o.log.Error("orchestrator: %s: re-enqueueing retry of %s: %v", o.ws.ID, job.JobID, err)
		return
	}
	o.ws.Bus.Publish(domainevent.New(domainevent.JobRetried, "job", retry.JobID, job.Event.CorrelationID, map[string]any{
		"job_id":   retry.JobID,
		"retry_of": job.JobID,
		"attempt":  retry.Attempt,
	}))
}

func commitMessage(result *agentfacade.AgentResult) string {
	if result.Message != "" {
		return result.Message
	}
	return "skybridge: automated changes"
}

func externalIDFromParsed(parsed json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(parsed, &m); err != nil {
		return ""
	}
	for _, key := range []string{"issue", "pull_request"} {
		if sub, ok := m[key].(map[string]any); ok {
			if n, ok := sub["number"].(float64); ok {
				return fmt.Sprintf("%.0f", n)
			}
		}
	}
	return ""
}

// shortHashOf derives a stable-looking 8 hex char suffix from seed, used
// when re-deriving a worktree's short_hash deterministically from its
// job_id, or minting a fresh one for a retry's regenerated job_id.
func shortHashOf(seed string) string {
	if seed == "" {
		return randomHash()
	}
	sum := fnv64(seed)
	return hex.EncodeToString([]byte{
		byte(sum), byte(sum >> 8), byte(sum >> 16), byte(sum >> 24),
	})
}

func fnv64(s string) uint32 {
	const prime = 16777619
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}

func randomHash() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
