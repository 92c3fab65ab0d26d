package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// CreateAgent inserts a new agent
func (s *Store) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate agent id: %w", err)
		}
		agent.ID = id
	}
	if agent.Status == "" {
		agent.Status = AgentActive
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}

	toolKeys, err := json.Marshal(agent.ToolKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal tool keys: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, org_id, name, status, provider, model, temperature,
			max_tokens, system_prompt, require_approval, tool_keys, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.OrgID, agent.Name, agent.Status, agent.Provider, agent.Model,
		agent.Temperature, agent.MaxTokens, agent.SystemPrompt,
		boolToInt(agent.RequireApproval), string(toolKeys), agent.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}

	log.Debug().Str("agent_id", agent.ID).Str("org_id", agent.OrgID).Msg("Agent created")
	return nil
}

// GetAgent returns an agent by id
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, status, provider, model, temperature,
			max_tokens, system_prompt, require_approval, tool_keys, created_at
		FROM agents WHERE id = ?`, id)

	var a Agent
	var requireApproval int
	var toolKeys string
	var createdAt int64

	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Status, &a.Provider, &a.Model,
		&a.Temperature, &a.MaxTokens, &a.SystemPrompt, &requireApproval, &toolKeys, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	a.RequireApproval = requireApproval != 0
	a.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(toolKeys), &a.ToolKeys); err != nil {
		return nil, fmt.Errorf("failed to parse tool keys: %w", err)
	}

	return &a, nil
}

// UpdateAgentStatus transitions an agent's lifecycle status
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent and cascades its audit rows
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM action_log WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete agent audit rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent deletion: %w", err)
	}

	log.Info().Str("agent_id", id).Msg("Agent deleted")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
