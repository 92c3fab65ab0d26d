package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/store"
)

// ErrActionNotFound is returned when an approval target does not exist or
// was already resolved
var ErrActionNotFound = errors.New("action not found or already resolved")

// Approve executes a pending action and resumes the paused turn. The
// continuation is rebuilt entirely from the durable transcript, so approval
// works across process restarts. The resumed loop gets a fresh round budget.
func (o *Orchestrator) Approve(ctx context.Context, actionID string) error {
	entry, agent, err := o.pendingAction(ctx, actionID)
	if err != nil {
		return err
	}

	// Claim the row before running anything. The guarded UPDATE admits
	// exactly one winner, so a concurrent approval (or a retry after a
	// crash) fails here, before any side effect.
	if err := o.store.ResolveAction(ctx, actionID, store.ActionSuccess, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrActionNotFound
		}
		return fmt.Errorf("failed to resolve action: %w", err)
	}

	room := events.ConversationRoom(entry.ConversationID)
	o.emitter.Emit(room, events.ToolExecution, events.ToolExecutionPayload{
		Status:         "started",
		ToolName:       entry.Action,
		ConversationID: entry.ConversationID,
		AgentID:        agent.ID,
	})

	result, execErr := o.registry.Execute(ctx, o.store, agent.OrgID, entry.Action, entry.Input)

	var output string
	if execErr != nil {
		output = errorOutput(execErr)
		log.Warn().Err(execErr).Str("action_id", actionID).Msg("Approved action failed")
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			output = errorOutput(merr)
		} else {
			output = string(data)
		}
	}

	if err := o.store.SetActionOutput(ctx, actionID, output); err != nil {
		log.Warn().Err(err).Str("action_id", actionID).Msg("Failed to record action output")
	}

	o.emitter.Emit(room, events.ToolExecution, events.ToolExecutionPayload{
		Status:         "completed",
		ToolName:       entry.Action,
		ConversationID: entry.ConversationID,
		AgentID:        agent.ID,
	})

	if err := o.appendResolution(ctx, agent, entry, output); err != nil {
		return err
	}

	log.Info().
		Str("action_id", actionID).
		Str("tool", entry.Action).
		Msg("Action approved")

	client, fixed, err := o.clientFor(ctx, agent)
	if err != nil {
		return err
	}
	if fixed != "" {
		return o.fixedReply(ctx, agent, entry.ConversationID, fixed)
	}
	return o.runRounds(ctx, agent, entry.ConversationID, client)
}

// Reject marks a pending action failed without executing it. The turn does
// not resume; the rejection result lands in the transcript and the agent
// picks it up on the next user message.
func (o *Orchestrator) Reject(ctx context.Context, actionID, reason string) error {
	entry, agent, err := o.pendingAction(ctx, actionID)
	if err != nil {
		return err
	}

	if reason == "" {
		reason = "rejected by user"
	} else {
		reason = "rejected by user: " + reason
	}
	output := errorOutput(errors.New(reason))

	if err := o.store.ResolveAction(ctx, actionID, store.ActionFailed, output); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrActionNotFound
		}
		return fmt.Errorf("failed to resolve action: %w", err)
	}

	if err := o.appendResolution(ctx, agent, entry, output); err != nil {
		return err
	}

	log.Info().Str("action_id", actionID).Str("tool", entry.Action).Msg("Action rejected")
	return nil
}

// pendingAction loads an action and its agent, insisting the action is still
// awaiting approval
func (o *Orchestrator) pendingAction(ctx context.Context, actionID string) (*store.ActionLogEntry, *store.Agent, error) {
	entry, err := o.store.GetAction(ctx, actionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrActionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load action: %w", err)
	}
	if entry.Status != store.ActionPendingApproval {
		return nil, nil, ErrActionNotFound
	}

	agent, err := o.store.GetAgent(ctx, entry.AgentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load agent: %w", err)
	}
	return entry, agent, nil
}

// appendResolution writes the action_result transcript entry that closes the
// action_request opened when the turn paused
func (o *Orchestrator) appendResolution(ctx context.Context, agent *store.Agent, entry *store.ActionLogEntry, output string) error {
	msg := &store.Message{
		ConversationID: entry.ConversationID,
		SenderKind:     store.SenderAgent,
		SenderID:       agent.ID,
		Content:        output,
		ContentType:    store.ContentActionResult,
		Metadata: map[string]any{
			metaActionID:   entry.ID,
			metaToolName:   entry.Action,
			metaToolCallID: o.toolCallIDFor(ctx, entry),
		},
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist action result: %w", err)
	}
	o.touchAndNotify(ctx, entry.ConversationID, msg)
	return nil
}

// toolCallIDFor recovers the provider tool call id from the action_request
// message that paused the turn. Falls back to the action id, which the
// history builder accepts as the pairing key.
func (o *Orchestrator) toolCallIDFor(ctx context.Context, entry *store.ActionLogEntry) string {
	msgs, err := o.store.ListMessages(ctx, entry.ConversationID)
	if err != nil {
		log.Warn().Err(err).Str("action_id", entry.ID).Msg("Failed to load transcript for tool call id")
		return entry.ID
	}
	for _, m := range msgs {
		if m.ContentType != store.ContentActionRequest {
			continue
		}
		if metaString(m, metaActionID) != entry.ID {
			continue
		}
		if id := metaString(m, metaToolCallID); id != "" {
			return id
		}
	}
	return entry.ID
}
