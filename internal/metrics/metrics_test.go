package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/store"
)

type captureEmitter struct {
	emitted int
}

func (c *captureEmitter) Emit(room, event string, payload any) {
	c.emitted++
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.TurnsStartedTotal == nil {
		t.Error("TurnsStartedTotal is nil")
	}
	if m.MessagesTotal == nil {
		t.Error("MessagesTotal is nil")
	}
	if m.StreamChunksTotal == nil {
		t.Error("StreamChunksTotal is nil")
	}
	if m.ToolExecutionsTotal == nil {
		t.Error("ToolExecutionsTotal is nil")
	}
	if m.ApprovalsPendingTotal == nil {
		t.Error("ApprovalsPendingTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
}

func TestObserverForwardsAndCounts(t *testing.T) {
	m := NewMetrics()
	next := &captureEmitter{}
	emitter := m.Observe(next)

	emitter.Emit("conversation:c1", events.AgentTyping, events.TypingPayload{})
	emitter.Emit("conversation:c1", events.MessageStream, events.StreamPayload{Chunk: "hi"})
	emitter.Emit("conversation:c1", events.MessageStream, events.StreamPayload{IsComplete: true})
	emitter.Emit("conversation:c1", events.ToolExecution, events.ToolExecutionPayload{ToolName: "list_clients", Status: "started"})
	emitter.Emit("conversation:c1", events.ToolExecution, events.ToolExecutionPayload{ToolName: "list_clients", Status: "completed"})
	emitter.Emit("org:o1", events.ApprovalPending, events.ApprovalPendingPayload{})
	emitter.Emit("conversation:c1", events.NewMessage, &store.Message{ContentType: store.ContentText})

	if next.emitted != 7 {
		t.Errorf("expected all 7 events forwarded, got %d", next.emitted)
	}

	body := scrape(t, m)
	for _, want := range []string{
		"billow_turns_started_total 1",
		"billow_stream_chunks_total 1",
		`billow_tool_executions_total{tool_name="list_clients"} 1`,
		"billow_approvals_pending_total 1",
		`billow_messages_total{content_type="text"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequestsTotal.WithLabelValues("/health", "200").Inc()

	body := scrape(t, m)
	if !strings.Contains(body, "billow_http_requests_total") {
		t.Error("metrics output missing billow_http_requests_total")
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	return rec.Body.String()
}
