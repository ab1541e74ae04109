// Package tools dispatches the voice agent's client-tool invocations to
// registered handlers and shapes their outcomes into protocol replies.
// Every invocation gets exactly one result: unknown tools and handler
// failures come back as tagged error results, never dropped responses.
package tools

import (
	"context"
	"log/slog"
	"sync"
)

// Tool names the agent may invoke.
const (
	ToolHangUp          = "hangUp"
	ToolScheduleMeeting = "schedule_meeting"
	ToolQuestionAnswer  = "question_and_answer"
)

// Result error tags defined by the agent protocol.
const (
	ErrorTypeNotImplemented = "not-implemented"
	ErrorTypeImplementation = "implementation-error"
)

// Invocation is one tool request from the agent.
type Invocation struct {
	InvocationID string
	ToolName     string
	Parameters   map[string]any
}

// Result is the reply to one Invocation. ErrorType is empty on success.
type Result struct {
	InvocationID string
	Value        string
	ErrorType    string
	ErrorMessage string
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.ErrorType == "" }

// Handler implements one tool. The returned string is spoken back to the
// agent as the tool outcome; an error becomes an implementation-error
// result, never a dropped response.
type Handler func(ctx context.Context, params map[string]any) (string, error)

// Dispatcher routes invocations by tool name over a fixed registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher returns an empty registry.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds or replaces the handler for a tool name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch runs the handler for the invocation and returns its result.
// Unknown tool names yield a not-implemented result.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	d.mu.RLock()
	handler, ok := d.handlers[inv.ToolName]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("unknown tool invoked",
			slog.String("tool", inv.ToolName),
			slog.String("invocation_id", inv.InvocationID))
		return Result{
			InvocationID: inv.InvocationID,
			ErrorType:    ErrorTypeNotImplemented,
			ErrorMessage: "tool not implemented: " + inv.ToolName,
		}
	}

	value, err := handler(ctx, inv.Parameters)
	if err != nil {
		d.logger.Error("tool handler failed",
			slog.String("tool", inv.ToolName),
			slog.String("invocation_id", inv.InvocationID),
			slog.Any("error", err))
		return Result{
			InvocationID: inv.InvocationID,
			ErrorType:    ErrorTypeImplementation,
			ErrorMessage: "An error occurred while processing your request.",
		}
	}

	return Result{InvocationID: inv.InvocationID, Value: value}
}
