package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billowhq/billow/pkg/store"
)

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, defaultSystemPrompt, systemPrompt(&store.Agent{}))
	assert.Equal(t, "custom", systemPrompt(&store.Agent{SystemPrompt: "custom"}))
}

func TestBuildHistoryTextRoles(t *testing.T) {
	msgs := []*store.Message{
		{SenderKind: store.SenderUser, Content: "hello", ContentType: store.ContentText},
		{SenderKind: store.SenderAgent, Content: "hi!", ContentType: store.ContentText},
		{SenderKind: store.SenderAgent, Content: "oops", ContentType: store.ContentError},
	}

	out := buildHistory(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "assistant", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
}

func TestBuildHistoryResolvedActionPair(t *testing.T) {
	msgs := []*store.Message{
		{SenderKind: store.SenderUser, Content: "invoice Acme", ContentType: store.ContentText},
		{
			SenderKind:  store.SenderAgent,
			Content:     "I need approval to run create_invoice.",
			ContentType: store.ContentActionRequest,
			Metadata: map[string]any{
				metaActionID:   "act-1",
				metaToolName:   "create_invoice",
				metaToolCallID: "call-1",
				metaArguments:  map[string]any{"client_id": "client-1"},
			},
		},
		{
			SenderKind:  store.SenderAgent,
			Content:     `{"invoice_id":"inv-1"}`,
			ContentType: store.ContentActionResult,
			Metadata: map[string]any{
				metaActionID:   "act-1",
				metaToolCallID: "call-1",
			},
		},
	}

	out := buildHistory(msgs)
	require.Len(t, out, 3)

	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "call-1", out[1].ToolCalls[0].ID)
	assert.Equal(t, "create_invoice", out[1].ToolCalls[0].Name)
	assert.Equal(t, "client-1", out[1].ToolCalls[0].Arguments["client_id"])

	assert.Equal(t, "tool", out[2].Role)
	assert.Equal(t, "call-1", out[2].ToolCallID)
	assert.Equal(t, `{"invoice_id":"inv-1"}`, out[2].Content)
}

func TestBuildHistoryPendingRequestGetsSyntheticResult(t *testing.T) {
	msgs := []*store.Message{
		{
			SenderKind:  store.SenderAgent,
			Content:     "I need approval.",
			ContentType: store.ContentActionRequest,
			Metadata: map[string]any{
				metaActionID:   "act-1",
				metaToolName:   "send_reminder",
				metaToolCallID: "call-9",
			},
		},
	}

	out := buildHistory(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "tool", out[1].Role)
	assert.Equal(t, "call-9", out[1].ToolCallID)
	assert.Contains(t, out[1].Content, "pending_approval")
}

func TestBuildHistoryFallsBackToActionID(t *testing.T) {
	msgs := []*store.Message{
		{
			SenderKind:  store.SenderAgent,
			ContentType: store.ContentActionRequest,
			Content:     "approval needed",
			Metadata:    map[string]any{metaActionID: "act-1", metaToolName: "send_reminder"},
		},
		{
			SenderKind:  store.SenderAgent,
			ContentType: store.ContentActionResult,
			Content:     `{"sent_to":"a@b.c"}`,
			Metadata:    map[string]any{metaActionID: "act-1", metaToolCallID: "act-1"},
		},
	}

	out := buildHistory(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "act-1", out[0].ToolCalls[0].ID)
	assert.Equal(t, "act-1", out[1].ToolCallID)
}
