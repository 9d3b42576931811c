package agentfacade

import "errors"

// ErrAgentStartError is returned when the subprocess fails to launch
// (binary missing, exec permission denied). Classified transient: a retry
// after backoff may succeed if the failure was e.g. a transient fork
// failure under load.
var ErrAgentStartError = errors.New("agentfacade: agent failed to start")

// ErrAgentTimeout is returned when the skill's timeout elapses before the
// agent produces a FinalResult. ThinkingSteps collected so far are
// preserved on the AgentExecution regardless.
var ErrAgentTimeout = errors.New("agentfacade: agent timed out")

// ErrAgentCrash is returned when the subprocess exits non-zero without a
// FinalResult. The stderr tail is preserved on the AgentExecution.
var ErrAgentCrash = errors.New("agentfacade: agent crashed")

// ErrAgentResultInvalid is returned when the terminal JSON object could not
// be parsed or did not satisfy the AgentResult schema.
var ErrAgentResultInvalid = errors.New("agentfacade: agent final result invalid")

// Retryable reports whether err should be treated as transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrAgentStartError)
}
