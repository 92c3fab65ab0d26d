package reminder

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/store"
)

type recorder struct {
	mu     sync.Mutex
	events []events.ApprovalPendingPayload
	rooms  []string
}

func (r *recorder) Emit(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event != events.ApprovalPending {
		return
	}
	if p, ok := payload.(events.ApprovalPendingPayload); ok {
		r.events = append(r.events, p)
		r.rooms = append(r.rooms, room)
	}
}

func setup(t *testing.T) (*store.Store, *recorder, *Reminder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "billow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := &recorder{}
	r := New(st, rec, Config{Schedule: "* * * * *", StaleAfter: 10 * time.Minute})
	return st, rec, r
}

func seedPending(t *testing.T, st *store.Store, age time.Duration) *store.ActionLogEntry {
	t.Helper()
	ctx := context.Background()

	agent := &store.Agent{ID: "agent-1", OrgID: "org-1", Name: "Billing", Provider: "anthropic", Model: "m"}
	if _, err := st.GetAgent(ctx, agent.ID); err != nil {
		require.NoError(t, st.CreateAgent(ctx, agent))
	}
	conv := &store.Conversation{ID: "conv-1", OrgID: "org-1"}
	if _, err := st.GetConversation(ctx, conv.ID); err != nil {
		require.NoError(t, st.CreateConversation(ctx, conv))
	}

	entry := &store.ActionLogEntry{
		AgentID:        agent.ID,
		ConversationID: conv.ID,
		Action:         "create_invoice",
		Input:          map[string]any{"client_id": "client-1"},
		Status:         store.ActionPendingApproval,
		CreatedAt:      time.Now().Add(-age),
	}
	require.NoError(t, st.InsertAction(ctx, entry))
	return entry
}

func TestSweepAnnouncesStaleApprovals(t *testing.T) {
	st, rec, r := setup(t)
	entry := seedPending(t, st, time.Hour)

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, rec.events, 1)
	assert.Equal(t, entry.ID, rec.events[0].ActionID)
	assert.Equal(t, "create_invoice", rec.events[0].ToolName)
	assert.Equal(t, events.OrgRoom("org-1"), rec.rooms[0])
}

func TestSweepIgnoresFreshApprovals(t *testing.T) {
	st, rec, r := setup(t)
	seedPending(t, st, time.Minute)

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, rec.events)
}

func TestSweepIgnoresResolvedActions(t *testing.T) {
	st, rec, r := setup(t)
	entry := seedPending(t, st, time.Hour)
	require.NoError(t, st.ResolveAction(context.Background(), entry.ID, store.ActionFailed, `{"error":"rejected"}`))

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, rec.events)
}

func TestConfigDefaults(t *testing.T) {
	r := New(nil, nil, Config{})
	assert.Equal(t, DefaultConfig().Schedule, r.config.Schedule)
	assert.Equal(t, DefaultConfig().StaleAfter, r.config.StaleAfter)
}
