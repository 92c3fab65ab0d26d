package store

import "time"

// AgentStatus is the lifecycle status of an agent
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentDisabled AgentStatus = "disabled"
)

// SenderKind identifies who authored a message
type SenderKind string

const (
	SenderUser  SenderKind = "user"
	SenderAgent SenderKind = "agent"
)

// ContentType tags a transcript entry
type ContentType string

const (
	ContentText          ContentType = "text"
	ContentActionRequest ContentType = "action_request"
	ContentActionResult  ContentType = "action_result"
	ContentError         ContentType = "error"
)

// ActionStatus is the approval lifecycle of a tool invocation attempt.
// A row only ever moves pending_approval -> success or pending_approval -> failed.
type ActionStatus string

const (
	ActionPendingApproval ActionStatus = "pending_approval"
	ActionSuccess         ActionStatus = "success"
	ActionFailed          ActionStatus = "failed"
)

// Agent is an LLM-backed actor with a bounded tool set.
// It is treated as a read-only snapshot during a turn.
type Agent struct {
	ID              string      `json:"id"`
	OrgID           string      `json:"org_id"`
	Name            string      `json:"name"`
	Status          AgentStatus `json:"status"`
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	Temperature     float64     `json:"temperature"`
	MaxTokens       int         `json:"max_tokens"`
	SystemPrompt    string      `json:"system_prompt"`
	RequireApproval bool        `json:"require_approval"`
	ToolKeys        []string    `json:"tool_keys"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Conversation is a thread of messages
type Conversation struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is an append-only transcript entry. Never mutated after creation;
// action_request metadata is the only durable record of what a paused tool
// call was.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderKind     SenderKind     `json:"sender_kind"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	ContentType    ContentType    `json:"content_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ActionLogEntry is one row per tool invocation attempt
type ActionLogEntry struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	ConversationID string         `json:"conversation_id"`
	Action         string         `json:"action"`
	Input          map[string]any `json:"input"`
	Output         string         `json:"output,omitempty"`
	Status         ActionStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// Client is a billing client record
type Client struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BalanceCents int64  `json:"balance_cents"`
}

// Invoice is a billing invoice record
type Invoice struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	ClientID    string    `json:"client_id"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
