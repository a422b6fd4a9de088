// Package types holds the shared data model for the Surf agent core:
// conversation messages, goals and their subtasks, and the web context
// snapshot that flows between the planner, orchestrator, and tools.
package types

import "github.com/google/uuid"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation history passed to the
// tool-calling LLM round.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system-role message with a fresh id.
func NewSystemMessage(content string) *Message {
	return &Message{ID: uuid.New().String(), Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message with a fresh id.
func NewUserMessage(content string) *Message {
	return &Message{ID: uuid.New().String(), Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message with a fresh id.
func NewAssistantMessage(content string) *Message {
	return &Message{ID: uuid.New().String(), Role: RoleAssistant, Content: content}
}

// LastUserMessage returns the most recent user-role message in the
// history, or nil if there is none.
func LastUserMessage(history []*Message) *Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i]
		}
	}
	return nil
}
