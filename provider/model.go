package provider

import (
	"context"

	"github.com/google/uuid"
)

// Provider is implemented by chat model backends. ChatCompletion returns a channel that
// yields the events of a single completion and is closed when the completion ends.
type Provider interface {
	ChatCompletion(context.Context, CompletionParams) (<-chan StreamEvent, error)
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionParams describes a chat completion request.
type CompletionParams struct {
	// RunID correlates the events of one completion.
	RunID uuid.UUID

	// Model is the provider specific model name.
	Model string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Stream asks for Chunk events before the final Response.
	Stream bool

	// Prevents unkeyed literals
	_ struct{}
}
