package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "billow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAgentLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	agent := &Agent{
		OrgID:           "org-1",
		Name:            "Billing Assistant",
		Provider:        "anthropic",
		Model:           "claude-sonnet-4-5",
		Temperature:     0.3,
		MaxTokens:       2048,
		SystemPrompt:    "help with billing",
		RequireApproval: true,
		ToolKeys:        []string{"list_clients", "create_invoice"},
	}
	require.NoError(t, st.CreateAgent(ctx, agent))
	require.NotEmpty(t, agent.ID)
	assert.Equal(t, AgentActive, agent.Status, "status defaults to active")

	got, err := st.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.Name, got.Name)
	assert.True(t, got.RequireApproval)
	assert.Equal(t, []string{"list_clients", "create_invoice"}, got.ToolKeys)

	require.NoError(t, st.UpdateAgentStatus(ctx, agent.ID, AgentPaused))
	got, err = st.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, AgentPaused, got.Status)

	require.NoError(t, st.DeleteAgent(ctx, agent.ID))
	_, err = st.GetAgent(ctx, agent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAgentNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationTouch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	conv := &Conversation{OrgID: "org-1", Title: "Billing"}
	require.NoError(t, st.CreateConversation(ctx, conv))

	at := time.Now().Add(time.Hour)
	require.NoError(t, st.TouchConversation(ctx, conv.ID, at))

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), got.LastMessageAt.UnixMilli())

	assert.ErrorIs(t, st.TouchConversation(ctx, "missing", at), ErrNotFound)
}

func TestMessagesAppendOnlyOrdered(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	conv := &Conversation{ID: "conv-1", OrgID: "org-1"}
	require.NoError(t, st.CreateConversation(ctx, conv))

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, st.AppendMessage(ctx, &Message{
			ConversationID: "conv-1",
			SenderKind:     SenderUser,
			Content:        content,
		}))
	}
	require.NoError(t, st.AppendMessage(ctx, &Message{
		ConversationID: "conv-1",
		SenderKind:     SenderAgent,
		SenderID:       "agent-1",
		Content:        "approval needed",
		ContentType:    ContentActionRequest,
		Metadata:       map[string]any{"action_id": "act-1", "tool_name": "create_invoice"},
	}))

	msgs, err := st.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
	assert.Equal(t, ContentActionRequest, msgs[3].ContentType)
	assert.Equal(t, "act-1", msgs[3].Metadata["action_id"])
}

func TestAppendMessageValidation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, st.AppendMessage(ctx, &Message{Content: "no conversation"}))
	assert.Error(t, st.AppendMessage(ctx, &Message{ConversationID: "conv-1"}))
}

func TestActionResolutionIsSingleShot(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateAgent(ctx, &Agent{ID: "agent-1", OrgID: "org-1", Name: "a", Provider: "anthropic", Model: "m"}))
	require.NoError(t, st.CreateConversation(ctx, &Conversation{ID: "conv-1", OrgID: "org-1"}))

	entry := &ActionLogEntry{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		Action:         "create_invoice",
		Input:          map[string]any{"client_id": "client-1"},
		Status:         ActionPendingApproval,
	}
	require.NoError(t, st.InsertAction(ctx, entry))

	require.NoError(t, st.ResolveAction(ctx, entry.ID, ActionSuccess, `{"invoice_id":"inv-1"}`))

	got, err := st.GetAction(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionSuccess, got.Status)
	assert.Equal(t, `{"invoice_id":"inv-1"}`, got.Output)
	require.NotNil(t, got.ResolvedAt)

	// a resolved row cannot be resolved again
	assert.ErrorIs(t, st.ResolveAction(ctx, entry.ID, ActionFailed, "{}"), ErrNotFound)
	assert.ErrorIs(t, st.ResolveAction(ctx, "missing", ActionSuccess, "{}"), ErrNotFound)

	// only terminal statuses are valid resolutions
	assert.Error(t, st.ResolveAction(ctx, entry.ID, ActionPendingApproval, "{}"))
}

func TestSetActionOutput(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateAgent(ctx, &Agent{ID: "agent-1", OrgID: "org-1", Name: "a", Provider: "anthropic", Model: "m"}))
	require.NoError(t, st.CreateConversation(ctx, &Conversation{ID: "conv-1", OrgID: "org-1"}))

	entry := &ActionLogEntry{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		Action:         "create_invoice",
		Status:         ActionPendingApproval,
	}
	require.NoError(t, st.InsertAction(ctx, entry))

	// approval claims the row first, then records the handler output
	require.NoError(t, st.ResolveAction(ctx, entry.ID, ActionSuccess, ""))
	require.NoError(t, st.SetActionOutput(ctx, entry.ID, `{"invoice_id":"inv-9"}`))

	got, err := st.GetAction(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionSuccess, got.Status)
	assert.Equal(t, `{"invoice_id":"inv-9"}`, got.Output)

	assert.ErrorIs(t, st.SetActionOutput(ctx, "missing", "{}"), ErrNotFound)
}

func TestListActions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateAgent(ctx, &Agent{ID: "agent-1", OrgID: "org-1", Name: "a", Provider: "anthropic", Model: "m"}))
	require.NoError(t, st.CreateConversation(ctx, &Conversation{ID: "conv-1", OrgID: "org-1"}))
	require.NoError(t, st.CreateConversation(ctx, &Conversation{ID: "conv-2", OrgID: "org-1"}))

	first := &ActionLogEntry{AgentID: "agent-1", ConversationID: "conv-1", Action: "list_clients", Status: ActionSuccess}
	second := &ActionLogEntry{AgentID: "agent-1", ConversationID: "conv-1", Action: "create_invoice", Status: ActionPendingApproval}
	other := &ActionLogEntry{AgentID: "agent-1", ConversationID: "conv-2", Action: "send_reminder", Status: ActionSuccess}
	require.NoError(t, st.InsertAction(ctx, first))
	require.NoError(t, st.InsertAction(ctx, second))
	require.NoError(t, st.InsertAction(ctx, other))

	entries, err := st.ListActions(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
}

func TestListPendingActions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateAgent(ctx, &Agent{ID: "agent-1", OrgID: "org-1", Name: "a", Provider: "anthropic", Model: "m"}))
	require.NoError(t, st.CreateConversation(ctx, &Conversation{ID: "conv-1", OrgID: "org-1"}))

	old := &ActionLogEntry{
		AgentID: "agent-1", ConversationID: "conv-1", Action: "send_reminder",
		Status: ActionPendingApproval, CreatedAt: time.Now().Add(-time.Hour),
	}
	fresh := &ActionLogEntry{
		AgentID: "agent-1", ConversationID: "conv-1", Action: "create_invoice",
		Status: ActionPendingApproval,
	}
	require.NoError(t, st.InsertAction(ctx, old))
	require.NoError(t, st.InsertAction(ctx, fresh))

	stale, err := st.ListPendingActions(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	all, err := st.ListPendingActions(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCredentialUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.GetCredential(ctx, "org-1", "anthropic")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.PutCredential(ctx, "org-1", "anthropic", "key-1"))
	key, err := st.GetCredential(ctx, "org-1", "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key)

	require.NoError(t, st.PutCredential(ctx, "org-1", "anthropic", "key-2"))
	key, err = st.GetCredential(ctx, "org-1", "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "key-2", key)
}

func TestBilling(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateClient(ctx, &Client{
		OrgID: "org-1", Name: "Acme Co", Email: "billing@acme.test", BalanceCents: 120000,
	}))
	require.NoError(t, st.CreateClient(ctx, &Client{
		OrgID: "org-2", Name: "Other Org Client", Email: "x@y.test",
	}))

	clients, err := st.ListClients(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, clients, 1, "clients are scoped to the org")
	assert.Equal(t, "Acme Co", clients[0].Name)

	_, err = st.GetClient(ctx, "org-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	inv := &Invoice{OrgID: "org-1", ClientID: clients[0].ID, AmountCents: 50000, Memo: "May retainer"}
	require.NoError(t, st.CreateInvoice(ctx, inv))
	assert.Equal(t, "draft", inv.Status)

	n, err := st.CountInvoices(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.CountInvoices(ctx, "org-2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
