// Package llm exposes a provider-agnostic streaming interface over LLM chat
// APIs. Every provider client reduces its native event stream to the chunk
// vocabulary below; callers never see provider-specific types.
package llm

import (
	"context"
	"fmt"
)

// ChunkType identifies a streaming chunk
type ChunkType string

const (
	ChunkTextDelta     ChunkType = "text_delta"
	ChunkToolCallStart ChunkType = "tool_call_start"
	ChunkToolCallDelta ChunkType = "tool_call_delta"
	ChunkToolCallEnd   ChunkType = "tool_call_end"
	ChunkMessageStop   ChunkType = "message_stop"
)

// ToolCall is a completed, structured tool invocation request from the model
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Chunk is one element of a provider stream. Only text_delta and completed
// tool_call_end chunks are semantically required; providers are free to skip
// the intermediate tool_call_start/delta chunks.
type Chunk struct {
	Type     ChunkType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// Stream is a pull-based chunk sequence. Recv returns io.EOF after the final
// chunk; any provider failure surfaces as an error from Recv, never as a
// special chunk.
type Stream interface {
	Recv() (Chunk, error)
}

// Message is a provider-neutral conversation entry
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSchema is the tool projection exposed to a provider. It carries no
// gating metadata.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request contains the parameters for a streaming chat call
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Client is a streaming LLM API client
type Client interface {
	// StreamMessage opens a streaming chat completion
	StreamMessage(ctx context.Context, request Request) (Stream, error)

	// Provider returns the provider name
	Provider() string
}

// NewClient creates a streaming client for the named provider
func NewClient(provider, apiKey string) (Client, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicClient(apiKey), nil
	case "openai":
		return NewOpenAIClient(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
