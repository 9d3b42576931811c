// Package agentprotocol parses the agent subprocess's stdout stream: free
// text interleaved with <skybridge_command> control frames, terminated by a
// single JSON final-result object. The parser tolerates partial reads,
// oversized frames, and hostile parameter values.
package agentprotocol

// Kind identifies the shape of a parsed Event.
type Kind int

const (
	KindLog Kind = iota
	KindProgress
	KindCheckpoint
	KindError
	KindTextChunk
	KindFinalResult
)

// Event is one item in the ordered stream the Parser emits.
type Event struct {
	Kind Kind

	// Log
	LogMessage string
	LogLevel   string

	// Progress
	ProgressPercent float64
	ProgressMessage string

	// Checkpoint
	CheckpointMessage string

	// Error
	ErrorMessage string
	ErrorType    string

	// TextChunk
	Text string

	// FinalResult
	FinalResultJSON []byte
}
