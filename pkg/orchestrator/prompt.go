package orchestrator

import (
	"github.com/billowhq/billow/pkg/llm"
	"github.com/billowhq/billow/pkg/store"
)

const defaultSystemPrompt = `You are a back-office assistant for a small business. ` +
	`You help with clients, invoices, and payment follow-ups. ` +
	`Use the available tools to look up real data instead of guessing. ` +
	`Some actions require human approval before they run; when one does, tell the user what you want to do and why.`

// Metadata keys used on action_request and action_result messages. The
// action_request metadata is the durable record of a paused tool call; the
// resolver and the history builder both depend on these keys.
const (
	metaActionID   = "action_id"
	metaToolName   = "tool_name"
	metaToolCallID = "tool_call_id"
	metaArguments  = "arguments"
)

func systemPrompt(agent *store.Agent) string {
	if agent.SystemPrompt != "" {
		return agent.SystemPrompt
	}
	return defaultSystemPrompt
}

// buildHistory reconstructs provider messages from the durable transcript.
// Plain text maps to user/assistant turns. An action_request becomes an
// assistant tool call; its action_result becomes the matching tool result. A
// request that is still unresolved gets a synthetic pending result so the
// provider history stays well-formed.
func buildHistory(msgs []*store.Message) []llm.Message {
	resolved := make(map[string]bool)
	for _, m := range msgs {
		if m.ContentType == store.ContentActionResult {
			resolved[metaString(m, metaToolCallID)] = true
		}
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.ContentType {
		case store.ContentActionRequest:
			tc := toolCallFromMetadata(m)
			out = append(out, llm.Message{
				Role:      "assistant",
				Content:   m.Content,
				ToolCalls: []llm.ToolCall{tc},
			})
			if !resolved[tc.ID] {
				out = append(out, llm.Message{
					Role:       "tool",
					ToolCallID: tc.ID,
					Content:    `{"status":"pending_approval","note":"awaiting user approval"}`,
				})
			}
		case store.ContentActionResult:
			out = append(out, llm.Message{
				Role:       "tool",
				ToolCallID: metaString(m, metaToolCallID),
				Content:    m.Content,
			})
		default:
			role := "user"
			if m.SenderKind == store.SenderAgent {
				role = "assistant"
			}
			out = append(out, llm.Message{Role: role, Content: m.Content})
		}
	}
	return out
}

func metaString(m *store.Message, key string) string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[key].(string)
	return s
}

func toolCallFromMetadata(m *store.Message) llm.ToolCall {
	tc := llm.ToolCall{
		ID:   metaString(m, metaToolCallID),
		Name: metaString(m, metaToolName),
	}
	if args, ok := m.Metadata[metaArguments].(map[string]any); ok {
		tc.Arguments = args
	}
	if tc.ID == "" {
		// Old rows may predate tool_call_id; fall back to the action id so the
		// request/result pair still lines up.
		tc.ID = metaString(m, metaActionID)
	}
	return tc
}
