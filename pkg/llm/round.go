// Package llm defines the tool-calling round boundary the orchestrator
// drives. A round is one opaque exchange: the conversation history goes
// in, the provider's message plus any tool calls it made and their
// results come back. Providers execute tool calls against the handler
// table supplied in RoundOptions before returning.
package llm

import (
	"context"

	"github.com/entrhq/surf/pkg/types"
)

// ToolCall is one tool invocation the model requested during a round.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolResult is the outcome of executing one tool call. Result and
// Error are mutually exclusive; a non-empty Error marks failure.
type ToolResult struct {
	Name   string
	Result string
	Error  string
}

// Failed reports whether the tool execution produced an error.
func (r ToolResult) Failed() bool { return r.Error != "" }

// RoundResult is what a single tool-calling round produced.
type RoundResult struct {
	// Message is the assistant's text for this round.
	Message string

	// ToolCalls lists the tool invocations the model requested.
	ToolCalls []ToolCall

	// ToolResults carries one entry per executed tool call, in order.
	ToolResults []ToolResult

	// Finished is true when the model produced no tool calls, i.e. it
	// considers the current request answered.
	Finished bool
}

// AnyToolError reports whether any tool result in the round failed.
func (r *RoundResult) AnyToolError() bool {
	for _, tr := range r.ToolResults {
		if tr.Failed() {
			return true
		}
	}
	return false
}

// Handler executes one named tool with already-decoded arguments.
// It returns a result string for the model, or an error.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolSpec describes one tool to the model: its name, what it does,
// and a JSON schema for its parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// RoundOptions configures a single round.
type RoundOptions struct {
	// Tools are the schemas advertised to the model.
	Tools []ToolSpec

	// Handlers maps tool names to their executors. A call to a name
	// with no handler produces a ToolResult with Error set; it never
	// aborts the round.
	Handlers map[string]Handler

	// Temperature, when non-zero, overrides the provider default.
	Temperature float64
}

// RoundRunner runs one tool-calling round against an LLM.
//
// Implementations must treat individual tool execution failures as
// data (ToolResult.Error), returning an error only when the round
// itself could not be performed (transport failure, bad credentials).
type RoundRunner interface {
	RunRound(ctx context.Context, history []*types.Message, opts RoundOptions) (*RoundResult, error)
}
