// Package reminder periodically re-surfaces approvals that have been sitting
// unresolved. A paused turn is invisible once its approval-pending event
// scrolls away; the sweep emits it again for every stale row.
package reminder

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/store"
)

// Config controls the sweep cadence
type Config struct {
	// Schedule is a standard 5-field cron expression
	Schedule string
	// StaleAfter is how long an approval may sit before it is re-announced
	StaleAfter time.Duration
}

// DefaultConfig returns the default sweep settings
func DefaultConfig() Config {
	return Config{
		Schedule:   "*/5 * * * *",
		StaleAfter: 30 * time.Minute,
	}
}

// Reminder runs the stale-approval sweep on a cron schedule
type Reminder struct {
	store   *store.Store
	emitter events.Emitter
	config  Config
	cron    *cron.Cron
}

// New creates a reminder sweeper
func New(st *store.Store, emitter events.Emitter, config Config) *Reminder {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Reminder{
		store:   st,
		emitter: emitter,
		config:  config,
	}
}

// Start schedules the sweep
func (r *Reminder) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		if _, err := r.SweepOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("Approval sweep failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()

	log.Info().
		Str("schedule", r.config.Schedule).
		Dur("staleAfter", r.config.StaleAfter).
		Msg("Approval reminder started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (r *Reminder) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// SweepOnce re-emits approval-pending for every stale unresolved action and
// returns how many were announced
func (r *Reminder) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.config.StaleAfter)
	entries, err := r.store.ListPendingActions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	agents := make(map[string]*store.Agent)
	announced := 0
	for _, entry := range entries {
		agent, ok := agents[entry.AgentID]
		if !ok {
			agent, err = r.store.GetAgent(ctx, entry.AgentID)
			if err != nil {
				log.Warn().Err(err).
					Str("action_id", entry.ID).
					Str("agent_id", entry.AgentID).
					Msg("Skipping pending action with unknown agent")
				continue
			}
			agents[entry.AgentID] = agent
		}

		r.emitter.Emit(events.OrgRoom(agent.OrgID), events.ApprovalPending, events.ApprovalPendingPayload{
			ActionID:       entry.ID,
			AgentID:        entry.AgentID,
			ConversationID: entry.ConversationID,
			ToolName:       entry.Action,
			PendingSince:   entry.CreatedAt.UnixMilli(),
		})
		announced++
	}

	if announced > 0 {
		log.Info().Int("count", announced).Msg("Re-announced stale approvals")
	}
	return announced, nil
}
