package agentfacade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h4mn/skybridge/agentprotocol"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/process"
)

// defaultTimeout is used when neither an explicit override nor a per-skill
// entry applies.
const defaultTimeout = 600 * time.Second

// defaultSkillTimeouts is the per-skill timeout table from the spec.
var defaultSkillTimeouts = map[string]time.Duration{
	"hello-world":   60 * time.Second,
	"bug-simple":    300 * time.Second,
	"bug-complex":   600 * time.Second,
	"refactor":      900 * time.Second,
	"resolve-issue": 600 * time.Second,
}

const stderrTailBytes = 4096

// Facade owns the lifetime of agent subprocess invocations. One Facade is
// shared across all jobs in a workspace; each Spawn call is independent.
type Facade struct {
	log logger.Logger

	agentBinary   string
	agentArgs     []string
	agentKind     string
	prompt        *SystemPromptTemplate
	promptCache   *promptCache
	skillTimeouts map[string]time.Duration
	maxFrameSize  int
}

// Config configures a Facade.
type Config struct {
	AgentBinary   string
	AgentArgs     []string
	AgentKind     string
	Prompt        *SystemPromptTemplate
	SkillTimeouts map[string]time.Duration // overrides/extends defaultSkillTimeouts
	MaxFrameSize  int
}

// New returns a Facade ready to Spawn agent executions.
func New(l logger.Logger, c Config) *Facade {
	timeouts := make(map[string]time.Duration, len(defaultSkillTimeouts))
	for k, v := range defaultSkillTimeouts {
		timeouts[k] = v
	}
	for k, v := range c.SkillTimeouts {
		timeouts[k] = v
	}

	return &Facade{
		log:           l,
		agentBinary:   c.AgentBinary,
		agentArgs:     c.AgentArgs,
		agentKind:     c.AgentKind,
		prompt:        c.Prompt,
		promptCache:   newPromptCache(),
		skillTimeouts: timeouts,
		maxFrameSize:  c.MaxFrameSize,
	}
}

// resolveTimeout applies the override > per-skill table > default
// precedence from the spec.
func (f *Facade) resolveTimeout(skill string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if t, ok := f.skillTimeouts[skill]; ok {
		return t
	}
	return defaultTimeout
}

// Spawn launches one agent invocation for sc and blocks until it reaches a
// terminal state. override, if non-zero, takes precedence over the
// per-skill timeout table.
func (f *Facade) Spawn(ctx context.Context, jobID string, sc SpawnContext, override time.Duration) (*AgentExecution, error) {
	timeout := f.resolveTimeout(sc.Skill, override)

	exec := &AgentExecution{
		ExecutionID:    uuid.NewString(),
		JobID:          jobID,
		Skill:          sc.Skill,
		AgentKind:      f.agentKind,
		State:          Created,
		TimeoutSeconds: int(timeout.Seconds()),
		CreatedAt:      time.Now(),
	}

	rendered, hash := f.prompt.render(sc, f.promptCache)
	f.log.Debug("agentfacade: execution %s using prompt %s", exec.ExecutionID, hash)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderr := newTailBuffer(stderrTailBytes)
	parser := agentprotocol.New(f.log, f.maxFrameSize)
	stdoutReader, stdoutWriter := io.Pipe()

	proc := process.New(f.log, process.Config{
		Path:              f.agentBinary,
		Args:              f.agentArgs,
		Dir:               sc.WorktreePath,
		Stdin:             strings.NewReader(rendered),
		Stdout:            stdoutWriter,
		Stderr:            stderr,
		InterruptSignal:   process.SIGTERM,
		SignalGracePeriod: 5 * time.Second,
	})

	exec.State = Running
	exec.StartedAt = time.Now()

	var consumeWG sync.WaitGroup
	consumeWG.Add(1)
	go func() {
		defer consumeWG.Done()
		f.consume(exec, parser.Events())
	}()

	go func() {
		_, _ = io.Copy(parser, stdoutReader)
		parser.Close()
	}()

	runErr := proc.Run(runCtx)
	_ = stdoutWriter.Close()
	consumeWG.Wait()

	exec.CompletedAt = time.Now()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		exec.State = TimedOut
		exec.ExitReason = ExitReasonTimeout
		exec.ErrorMessage = fmt.Sprintf("agent exceeded %s timeout", timeout)
		return exec, fmt.Errorf("%w: execution %s", ErrAgentTimeout, exec.ExecutionID)

	case ctx.Err() != nil:
		exec.State = TimedOut
		exec.ExitReason = ExitReasonShutdown
		exec.ErrorMessage = "shutdown requested before agent completed"
		return exec, fmt.Errorf("%w: execution %s", ErrAgentTimeout, exec.ExecutionID)

	case runErr != nil && proc.Pid() == 0:
		exec.State = Crashed
		exec.ExitReason = ExitReasonCrash
		exec.ErrorMessage = runErr.Error()
		return exec, fmt.Errorf("%w: %v", ErrAgentStartError, runErr)

	case runErr != nil:
		exec.State = Crashed
		exec.ExitReason = ExitReasonCrash
		exec.ErrorMessage = fmt.Sprintf("%v: stderr tail: %s", runErr, stderr.String())
		return exec, fmt.Errorf("%w: %v", ErrAgentCrash, runErr)

	case exec.FinalResult == nil:
		exec.State = Crashed
		exec.ExitReason = ExitReasonCrash
		exec.ErrorMessage = "agent exited without a final result"
		return exec, fmt.Errorf("%w: execution %s produced no final result", ErrAgentResultInvalid, exec.ExecutionID)

	default:
		exec.State = Complete
		exec.ExitReason = ExitReasonCompleted
		return exec, nil
	}
}

// consume drains parsed protocol events into the execution's thinking
// steps, command log, and final result until the channel closes.
func (f *Facade) consume(exec *AgentExecution, events <-chan agentprotocol.Event) {
	step := 0
	last := time.Now()

	record := func(thought string) {
		step++
		now := time.Now()
		exec.ThinkingSteps = append(exec.ThinkingSteps, ThinkingStep{
			Step:       step,
			Timestamp:  now,
			DurationMS: now.Sub(last).Milliseconds(),
			Thought:    thought,
		})
		last = now
	}

	for e := range events {
		switch e.Kind {
		case agentprotocol.KindLog:
			exec.CommandsReceived = append(exec.CommandsReceived, CommandReceived{
				Name: "log", Timestamp: time.Now(),
				Params: map[string]string{"mensagem": e.LogMessage, "nivel": e.LogLevel},
			})
			record(e.LogMessage)

		case agentprotocol.KindProgress:
			exec.CommandsReceived = append(exec.CommandsReceived, CommandReceived{
				Name: "progress", Timestamp: time.Now(),
				Params: map[string]string{"mensagem": e.ProgressMessage},
			})
			record(e.ProgressMessage)

		case agentprotocol.KindCheckpoint:
			exec.CommandsReceived = append(exec.CommandsReceived, CommandReceived{
				Name: "checkpoint", Timestamp: time.Now(),
				Params: map[string]string{"mensagem": e.CheckpointMessage},
			})
			record(e.CheckpointMessage)

		case agentprotocol.KindError:
			exec.CommandsReceived = append(exec.CommandsReceived, CommandReceived{
				Name: "error", Timestamp: time.Now(),
				Params: map[string]string{"mensagem": e.ErrorMessage, "tipo": e.ErrorType},
			})

		case agentprotocol.KindFinalResult:
			var result AgentResult
			if err := json.Unmarshal(e.FinalResultJSON, &result); err != nil {
				f.log.Warn("agentfacade: execution %s final result invalid: %v", exec.ExecutionID, err)
				continue
			}
			exec.FinalResult = &result
		}
	}
}

// tailBuffer keeps only the last n bytes written to it, for stderr
// diagnostics without unbounded memory growth on a chatty subprocess.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	n   int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.buf.Len() > t.n {
		trimmed := t.buf.Bytes()[t.buf.Len()-t.n:]
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
