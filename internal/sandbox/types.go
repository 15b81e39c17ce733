package sandbox

import "time"

// Kind classifies an output record
type Kind string

const (
	KindLog   Kind = "log"
	KindError Kind = "error"
	KindWarn  Kind = "warn"
)

// OutputRecord is one line of captured script output
type OutputRecord struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content"`
	Line    int    `json:"line,omitempty"` // 1-based source line, 0 when unknown
}

// RunRequest is the input of a single execution session
type RunRequest struct {
	Source  string
	Timeout time.Duration
}

// Outcome summarizes how a run ended
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeScriptError Outcome = "script_error"
	OutcomeSyntaxError Outcome = "syntax_error"
	OutcomeTimeout     Outcome = "timeout"
)

// RunResult is produced exactly once per completed session
type RunResult struct {
	RunID      string
	Transcript []OutputRecord
	Outcome    Outcome
	Duration   time.Duration
	Truncated  bool // output hit the log limit
}

// State is the lifecycle position of a Session
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSettling
	StateCompleted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSettling:
		return "settling"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
