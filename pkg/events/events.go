// Package events defines the narrow real-time contract the turn engine
// publishes through. Emission is fire-and-forget with at-most-once delivery;
// the engine assumes nothing beyond "emits happen in call order within this
// process".
package events

import "fmt"

// Event names understood by listening clients
const (
	AgentTyping         = "agent-typing"
	AgentTypingStop     = "agent-typing-stop"
	MessageStream       = "message-stream"
	ToolExecution       = "tool-execution"
	NewMessage          = "new-message"
	ConversationUpdated = "conversation-updated"
	ApprovalPending     = "approval-pending"
)

// Emitter publishes an event to a room. Implementations must never block the
// caller on slow consumers and must never return delivery errors.
type Emitter interface {
	Emit(room, event string, payload any)
}

// ConversationRoom addresses the listeners of one conversation
func ConversationRoom(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// OrgRoom addresses all listeners of an organization
func OrgRoom(orgID string) string {
	return fmt.Sprintf("org:%s", orgID)
}

// TypingPayload accompanies agent-typing / agent-typing-stop
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
}

// StreamPayload accompanies message-stream
type StreamPayload struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	MessageID      string `json:"messageId"`
	Chunk          string `json:"chunk"`
	IsComplete     bool   `json:"isComplete"`
}

// ToolExecutionPayload accompanies tool-execution
type ToolExecutionPayload struct {
	Status         string `json:"status"` // started, completed
	ToolName       string `json:"toolName"`
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
}

// ConversationUpdatedPayload accompanies conversation-updated
type ConversationUpdatedPayload struct {
	ConversationID string `json:"conversationId"`
	LastMessage    string `json:"lastMessage"`
}

// ApprovalPendingPayload accompanies approval-pending reminders
type ApprovalPendingPayload struct {
	ActionID       string `json:"actionId"`
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	ToolName       string `json:"toolName"`
	PendingSince   int64  `json:"pendingSince"`
}
