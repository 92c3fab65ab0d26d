// Package orchestrator runs agent turns: it streams model output, executes
// tool calls against the registry, and pauses the turn for human approval
// when a gated tool comes up. All durable state lives in the store; a paused
// turn survives a restart because the pending action row plus the
// action_request message are enough to rebuild the continuation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/billowhq/billow/internal/tracing"
	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/llm"
	"github.com/billowhq/billow/pkg/store"
	"github.com/billowhq/billow/pkg/tools"
)

// Fixed responses persisted when a turn cannot proceed normally
const (
	missingCredentialsMessage = "I can't respond right now because no API credentials are configured for this workspace. Ask an administrator to add them."
	inactiveAgentMessage      = "This agent is currently paused and can't respond. An administrator can re-enable it."
	internalErrorMessage      = "I ran into an unexpected error while handling that request. Please try again."
)

const (
	defaultMaxRounds = 10
	defaultMaxTokens = 4096
)

// ClientFactory builds a provider client from stored credentials
type ClientFactory func(provider, apiKey string) (llm.Client, error)

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithClientFactory overrides how provider clients are constructed
func WithClientFactory(f ClientFactory) Option {
	return func(o *Orchestrator) { o.newClient = f }
}

// WithMaxRounds overrides the per-turn round budget
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) { o.maxRounds = n }
}

// Orchestrator drives agent turns for all conversations. It is safe for
// concurrent use; per-conversation serialization is the caller's job.
type Orchestrator struct {
	store     *store.Store
	registry  *tools.Registry
	emitter   events.Emitter
	newClient ClientFactory
	maxRounds int
}

// New creates an orchestrator
func New(st *store.Store, registry *tools.Registry, emitter events.Emitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		registry:  registry,
		emitter:   emitter,
		newClient: llm.NewClient,
		maxRounds: defaultMaxRounds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn handles one user message: persists it, then runs the model loop
// until the agent produces a final text reply, pauses on a gated tool call,
// or exhausts the round budget.
func (o *Orchestrator) RunTurn(ctx context.Context, agentID, conversationID, userText string) error {
	if strings.TrimSpace(userText) == "" {
		return fmt.Errorf("user message cannot be empty")
	}

	agent, err := o.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.OrgID != agent.OrgID {
		return fmt.Errorf("conversation %s does not belong to agent org", conversationID)
	}

	userMsg := &store.Message{
		ConversationID: conversationID,
		SenderKind:     store.SenderUser,
		Content:        userText,
		ContentType:    store.ContentText,
	}
	if err := o.store.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	o.touchAndNotify(ctx, conversationID, userMsg)

	if agent.Status != store.AgentActive {
		return o.fixedReply(ctx, agent, conversationID, inactiveAgentMessage)
	}

	client, fixed, err := o.clientFor(ctx, agent)
	if err != nil {
		return err
	}
	if fixed != "" {
		return o.fixedReply(ctx, agent, conversationID, fixed)
	}

	return o.runRounds(ctx, agent, conversationID, client)
}

// clientFor builds the provider client for an agent. A missing credential is
// not an error: it returns a fixed reply for the transcript instead.
func (o *Orchestrator) clientFor(ctx context.Context, agent *store.Agent) (llm.Client, string, error) {
	apiKey, err := o.store.GetCredential(ctx, agent.OrgID, agent.Provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, missingCredentialsMessage, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load credentials: %w", err)
	}

	client, err := o.newClient(agent.Provider, apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", agent.Provider, err)
	}
	return client, "", nil
}

// runRounds is the shared model loop used by fresh turns and approval
// continuations. Every entry gets a fresh round budget.
func (o *Orchestrator) runRounds(ctx context.Context, agent *store.Agent, conversationID string, client llm.Client) (retErr error) {
	room := events.ConversationRoom(conversationID)
	typing := events.TypingPayload{ConversationID: conversationID, AgentID: agent.ID}

	// One message id keys the whole turn's stream, across rounds.
	streamID, err := gonanoid.New()
	if err != nil {
		return o.failTurn(ctx, agent, conversationID, err)
	}

	o.emitter.Emit(room, events.AgentTyping, typing)
	defer func() {
		// The stream-complete and typing-stop pair fires exactly once per
		// entry, on every exit path.
		o.emitter.Emit(room, events.MessageStream, events.StreamPayload{
			ConversationID: conversationID,
			AgentID:        agent.ID,
			MessageID:      streamID,
			IsComplete:     true,
		})
		o.emitter.Emit(room, events.AgentTypingStop, typing)
	}()

	transcript, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return o.failTurn(ctx, agent, conversationID, fmt.Errorf("failed to load transcript: %w", err))
	}
	messages := buildHistory(transcript)

	defs := o.registry.ForAgent(agent.ToolKeys)
	schemas := o.registry.ProviderSchemas(defs)

	maxTokens := agent.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	for round := 0; round < o.maxRounds; round++ {
		stream, err := client.StreamMessage(ctx, llm.Request{
			Model:        agent.Model,
			Messages:     messages,
			Tools:        schemas,
			Temperature:  agent.Temperature,
			MaxTokens:    maxTokens,
			SystemPrompt: systemPrompt(agent),
		})
		if err != nil {
			return o.failTurn(ctx, agent, conversationID, fmt.Errorf("provider request failed: %w", err))
		}

		var text strings.Builder
		var toolCalls []llm.ToolCall
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return o.failTurn(ctx, agent, conversationID, fmt.Errorf("stream failed: %w", err))
			}

			switch chunk.Type {
			case llm.ChunkTextDelta:
				text.WriteString(chunk.Text)
				o.emitter.Emit(room, events.MessageStream, events.StreamPayload{
					ConversationID: conversationID,
					AgentID:        agent.ID,
					MessageID:      streamID,
					Chunk:          chunk.Text,
				})
			case llm.ChunkToolCallEnd:
				if chunk.ToolCall != nil {
					toolCalls = append(toolCalls, *chunk.ToolCall)
				}
			}
		}

		reply := text.String()
		if reply != "" {
			msg := &store.Message{
				ConversationID: conversationID,
				SenderKind:     store.SenderAgent,
				SenderID:       agent.ID,
				Content:        reply,
				ContentType:    store.ContentText,
			}
			if err := o.store.AppendMessage(ctx, msg); err != nil {
				return o.failTurn(ctx, agent, conversationID, fmt.Errorf("failed to persist reply: %w", err))
			}
			o.touchAndNotify(ctx, conversationID, msg)
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: reply, ToolCalls: toolCalls})

		if len(toolCalls) == 0 {
			return nil
		}

		for _, call := range toolCalls {
			def, known := o.registry.ByName(call.Name)

			if known && def.Destructive && agent.RequireApproval {
				// Gated call: record it durably and stop. Any tool calls after
				// this one in the same batch are dropped; the model re-plans
				// them after resolution with the real result in hand.
				return o.pauseForApproval(ctx, agent, conversationID, call)
			}

			output := o.executeCall(ctx, agent, conversationID, call)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    output,
			})
		}
	}

	// Budget exhausted: the loop just stops. Whatever text already landed in
	// the transcript stands as the final reply.
	log.Warn().
		Str("agent_id", agent.ID).
		Str("conversation_id", conversationID).
		Int("rounds", o.maxRounds).
		Msg("Turn exhausted round budget")
	return nil
}

// pauseForApproval persists the pending action row and the action_request
// message, which together are the continuation token for the paused turn.
func (o *Orchestrator) pauseForApproval(ctx context.Context, agent *store.Agent, conversationID string, call llm.ToolCall) error {
	entry := &store.ActionLogEntry{
		AgentID:        agent.ID,
		ConversationID: conversationID,
		Action:         call.Name,
		Input:          call.Arguments,
		Status:         store.ActionPendingApproval,
	}
	if err := o.store.InsertAction(ctx, entry); err != nil {
		return o.failTurn(ctx, agent, conversationID, fmt.Errorf("failed to record pending action: %w", err))
	}

	args, _ := json.Marshal(call.Arguments)
	msg := &store.Message{
		ConversationID: conversationID,
		SenderKind:     store.SenderAgent,
		SenderID:       agent.ID,
		Content:        fmt.Sprintf("I need your approval to run %s with %s.", call.Name, args),
		ContentType:    store.ContentActionRequest,
		Metadata: map[string]any{
			metaActionID:   entry.ID,
			metaToolName:   call.Name,
			metaToolCallID: call.ID,
			metaArguments:  call.Arguments,
		},
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return o.failTurn(ctx, agent, conversationID, fmt.Errorf("failed to persist action request: %w", err))
	}
	o.touchAndNotify(ctx, conversationID, msg)

	o.emitter.Emit(events.OrgRoom(agent.OrgID), events.ApprovalPending, events.ApprovalPendingPayload{
		ActionID:       entry.ID,
		AgentID:        agent.ID,
		ConversationID: conversationID,
		ToolName:       call.Name,
		PendingSince:   entry.CreatedAt.UnixMilli(),
	})

	log.Info().
		Str("action_id", entry.ID).
		Str("tool", call.Name).
		Str("conversation_id", conversationID).
		Str("trace_id", tracing.TraceID(ctx)).
		Msg("Turn paused for approval")
	return nil
}

// executeCall runs a non-gated tool call, records it in the audit log, and
// returns the JSON output handed back to the model. A handler error is still
// a completed invocation: the row lands as success with the {"error": ...}
// output as the audit evidence; failed is reserved for the pending→failed
// transition.
func (o *Orchestrator) executeCall(ctx context.Context, agent *store.Agent, conversationID string, call llm.ToolCall) string {
	room := events.ConversationRoom(conversationID)
	o.emitter.Emit(room, events.ToolExecution, events.ToolExecutionPayload{
		Status:         "started",
		ToolName:       call.Name,
		ConversationID: conversationID,
		AgentID:        agent.ID,
	})

	result, err := o.registry.Execute(ctx, o.store, agent.OrgID, call.Name, call.Arguments)

	var output string
	if err != nil {
		output = errorOutput(err)
		log.Warn().Err(err).Str("tool", call.Name).Msg("Tool execution failed")
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			output = errorOutput(merr)
		} else {
			output = string(data)
		}
	}

	now := time.Now()
	entry := &store.ActionLogEntry{
		AgentID:        agent.ID,
		ConversationID: conversationID,
		Action:         call.Name,
		Input:          call.Arguments,
		Output:         output,
		Status:         store.ActionSuccess,
		ResolvedAt:     &now,
	}
	if err := o.store.InsertAction(ctx, entry); err != nil {
		log.Error().Err(err).Str("tool", call.Name).Msg("Failed to record action")
	}

	o.emitter.Emit(room, events.ToolExecution, events.ToolExecutionPayload{
		Status:         "completed",
		ToolName:       call.Name,
		ConversationID: conversationID,
		AgentID:        agent.ID,
	})
	return output
}

// fixedReply persists a canned agent message and ends the turn cleanly. It
// owns the stream-complete/typing-stop pair for turns that never reach the
// model loop.
func (o *Orchestrator) fixedReply(ctx context.Context, agent *store.Agent, conversationID, content string) error {
	msg := &store.Message{
		ConversationID: conversationID,
		SenderKind:     store.SenderAgent,
		SenderID:       agent.ID,
		Content:        content,
		ContentType:    store.ContentText,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist reply: %w", err)
	}
	o.touchAndNotify(ctx, conversationID, msg)

	room := events.ConversationRoom(conversationID)
	o.emitter.Emit(room, events.MessageStream, events.StreamPayload{
		ConversationID: conversationID,
		AgentID:        agent.ID,
		MessageID:      msg.ID,
		IsComplete:     true,
	})
	o.emitter.Emit(room, events.AgentTypingStop, events.TypingPayload{
		ConversationID: conversationID,
		AgentID:        agent.ID,
	})
	return nil
}

// failTurn persists an apology so the transcript explains the dead turn,
// then surfaces the original error to the caller
func (o *Orchestrator) failTurn(ctx context.Context, agent *store.Agent, conversationID string, cause error) error {
	log.Error().Err(cause).
		Str("agent_id", agent.ID).
		Str("conversation_id", conversationID).
		Str("trace_id", tracing.TraceID(ctx)).
		Msg("Turn failed")

	msg := &store.Message{
		ConversationID: conversationID,
		SenderKind:     store.SenderAgent,
		SenderID:       agent.ID,
		Content:        internalErrorMessage,
		ContentType:    store.ContentError,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Failed to persist error message")
	} else {
		o.touchAndNotify(ctx, conversationID, msg)
	}
	return cause
}

func (o *Orchestrator) touchAndNotify(ctx context.Context, conversationID string, msg *store.Message) {
	if err := o.store.TouchConversation(ctx, conversationID, msg.CreatedAt); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to touch conversation")
	}

	room := events.ConversationRoom(conversationID)
	o.emitter.Emit(room, events.NewMessage, msg)
	o.emitter.Emit(room, events.ConversationUpdated, events.ConversationUpdatedPayload{
		ConversationID: conversationID,
		LastMessage:    msg.Content,
	})
}

func errorOutput(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
