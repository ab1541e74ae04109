package ultravox

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Text-frame message types the agent sends. Anything else is logged and
// skipped by the pump.
const (
	TypeTranscript           = "transcript"
	TypeClientToolInvocation = "client_tool_invocation"
	TypeState                = "state"
	TypeCallStarted          = "call_started"
	TypePlaybackClearBuffer  = "playback_clear_buffer"
	TypeDebug                = "debug"
)

// Transcript speaker roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ErrMalformedMessage indicates an agent text frame that could not be
// decoded. Dropped by the pump, never fatal.
var ErrMalformedMessage = errors.New("malformed agent message")

// ServerMessage is a decoded agent text frame. Fields are populated
// according to Type; a transcript carries either Text or Delta.
type ServerMessage struct {
	Type string `json:"type"`

	// transcript
	Role  string `json:"role,omitempty"`
	Text  string `json:"text,omitempty"`
	Delta string `json:"delta,omitempty"`
	Final bool   `json:"final,omitempty"`

	// client_tool_invocation
	ToolName     string         `json:"toolName,omitempty"`
	InvocationID string         `json:"invocationId,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`

	// state
	State string `json:"state,omitempty"`
}

// TranscriptText returns whichever of the full text or incremental delta
// the message carries. Deltas are appended as received; one logical
// utterance may arrive as several non-final deltas plus one final text.
func (m *ServerMessage) TranscriptText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Delta
}

// DecodeServerMessage parses one agent text frame.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", ErrMalformedMessage)
	}
	return &msg, nil
}

// ToolResult is the reply to a client_tool_invocation. Exactly one of
// Result or the error pair is set. The protocol requires a result for
// every invocation before the session is torn down.
type ToolResult struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId"`
	Result       string `json:"result,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SuccessResult builds a successful tool reply.
func SuccessResult(invocationID, result string) ToolResult {
	return ToolResult{
		Type:         "client_tool_result",
		InvocationID: invocationID,
		Result:       result,
		ResponseType: "tool-response",
	}
}

// ErrorResult builds a failed tool reply.
func ErrorResult(invocationID, errorType, message string) ToolResult {
	return ToolResult{
		Type:         "client_tool_result",
		InvocationID: invocationID,
		ErrorType:    errorType,
		ErrorMessage: message,
	}
}
