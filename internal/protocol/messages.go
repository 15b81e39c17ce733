package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/sandbox"
	"github.com/bytedance/sonic"
)

// Message types
const (
	TypeExecute   = "execute"
	TypeTerminate = "terminate"
	TypePing      = "ping"
	TypeComplete  = "complete"
	TypeError     = "error"
	TypePong      = "pong"
	TypeSystem    = "system"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// api matches encoding/json behaviour (HTML escaping, UTF-8 validation)
var api = sonic.ConfigStd

// Inbound is a message received on a channel connection
type Inbound struct {
	Type         string `json:"type"`
	Code         string `json:"code,omitempty"`
	Timeout      int64  `json:"timeout,omitempty"`      // ms, 0 uses the server default
	AutoRunDelay int64  `json:"autoRunDelay,omitempty"` // ms, 0 runs immediately
}

// RunRequest converts an execute message
func (m Inbound) RunRequest() sandbox.RunRequest {
	return sandbox.RunRequest{Source: m.Code, Timeout: time.Duration(m.Timeout) * time.Millisecond}
}

// Delay returns the debounce delay of an execute message
func (m Inbound) Delay() time.Duration {
	return time.Duration(m.AutoRunDelay) * time.Millisecond
}

// DecodeInbound parses and checks one inbound frame
func DecodeInbound(data []byte) (Inbound, error) {
	var m Inbound
	if err := api.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch m.Type {
	case TypeExecute:
		if m.Timeout < 0 || m.AutoRunDelay < 0 {
			return Inbound{}, fmt.Errorf("%w: timeout and autoRunDelay must not be negative", ErrMalformed)
		}
	case TypeTerminate, TypePing:
	case "":
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}

// Complete carries the transcript of one finished run
type Complete struct {
	Type       string                 `json:"type"`
	RunID      string                 `json:"runId"`
	Logs       []sandbox.OutputRecord `json:"logs"`
	Outcome    string                 `json:"outcome"`
	DurationMs int64                  `json:"durationMs"`
	Truncated  bool                   `json:"truncated,omitempty"`
}

// NewComplete builds the completion message for a result
func NewComplete(result sandbox.RunResult) Complete {
	return Complete{
		Type:       TypeComplete,
		RunID:      result.RunID,
		Logs:       nonNil(result.Transcript),
		Outcome:    string(result.Outcome),
		DurationMs: result.Duration.Milliseconds(),
		Truncated:  result.Truncated,
	}
}

// Error reports a request the server could not act on
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error message
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// Pong answers a ping
type Pong struct {
	Type string `json:"type"`
}

// NewPong builds a pong message
func NewPong() Pong {
	return Pong{Type: TypePong}
}

// System is sent once when a connection opens
type System struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ChannelID string `json:"channelId"`
}

// NewSystem builds a welcome message
func NewSystem(channelID string) System {
	return System{Type: TypeSystem, Message: "connected", ChannelID: channelID}
}

// RunRequest is the body of POST /run
type RunRequest struct {
	Source         string `json:"source"`
	TimeoutMs      int64  `json:"timeoutMs,omitempty"`
	AutoRunDelayMs int64  `json:"autoRunDelayMs,omitempty"`
}

// Sandbox converts the body into an engine request
func (r RunRequest) Sandbox() sandbox.RunRequest {
	return sandbox.RunRequest{Source: r.Source, Timeout: time.Duration(r.TimeoutMs) * time.Millisecond}
}

// Delay returns the requested debounce delay
func (r RunRequest) Delay() time.Duration {
	return time.Duration(r.AutoRunDelayMs) * time.Millisecond
}

// RunResponse is the body returned by POST /run
type RunResponse struct {
	RunID      string                 `json:"runId"`
	Logs       []sandbox.OutputRecord `json:"logs"`
	Outcome    string                 `json:"outcome"`
	DurationMs int64                  `json:"durationMs"`
	Truncated  bool                   `json:"truncated,omitempty"`
}

// NewRunResponse builds the HTTP response for a result
func NewRunResponse(result sandbox.RunResult) RunResponse {
	return RunResponse{
		RunID:      result.RunID,
		Logs:       nonNil(result.Transcript),
		Outcome:    string(result.Outcome),
		DurationMs: result.Duration.Milliseconds(),
		Truncated:  result.Truncated,
	}
}

// Encode serializes any protocol message
func Encode(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Decode parses data into v
func Decode(data []byte, v any) error {
	if err := api.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func nonNil(records []sandbox.OutputRecord) []sandbox.OutputRecord {
	if records == nil {
		return []sandbox.OutputRecord{}
	}
	return records
}
