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

// InsertAction records a tool invocation attempt in the audit log
func (s *Store) InsertAction(ctx context.Context, entry *ActionLogEntry) error {
	if entry.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate action id: %w", err)
		}
		entry.ID = id
	}
	if entry.Status == "" {
		return fmt.Errorf("action status is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	input := "{}"
	if entry.Input != nil {
		data, err := json.Marshal(entry.Input)
		if err != nil {
			return fmt.Errorf("failed to marshal action input: %w", err)
		}
		input = string(data)
	}

	var resolvedAt any
	if entry.ResolvedAt != nil {
		resolvedAt = entry.ResolvedAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_log (id, agent_id, conversation_id, action, input, output, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AgentID, entry.ConversationID, entry.Action, input,
		entry.Output, entry.Status, entry.CreatedAt.UnixMilli(), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert action log entry: %w", err)
	}

	log.Debug().
		Str("action_id", entry.ID).
		Str("action", entry.Action).
		Str("status", string(entry.Status)).
		Msg("Action logged")

	return nil
}

// GetAction returns an action log entry by id
func (s *Store) GetAction(ctx context.Context, id string) (*ActionLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, conversation_id, action, input, output, status, created_at, resolved_at
		FROM action_log WHERE id = ?`, id)
	return scanAction(row)
}

// ResolveAction transitions a pending_approval row to success or failed.
// The guarded UPDATE is the only status transition the audit log permits;
// resolving a row that is absent or already resolved returns ErrNotFound.
func (s *Store) ResolveAction(ctx context.Context, id string, status ActionStatus, output string) error {
	if status != ActionSuccess && status != ActionFailed {
		return fmt.Errorf("invalid resolution status: %s", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE action_log SET status = ?, output = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		status, output, time.Now().UnixMilli(), id, ActionPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to resolve action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	log.Info().Str("action_id", id).Str("status", string(status)).Msg("Action resolved")
	return nil
}

// SetActionOutput fills in the output of an already-resolved row. Approval
// claims the row with ResolveAction first and records the handler output
// once it is known.
func (s *Store) SetActionOutput(ctx context.Context, id, output string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE action_log SET output = ? WHERE id = ?`, output, id)
	if err != nil {
		return fmt.Errorf("failed to set action output: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActions returns a conversation's audit rows in creation order
func (s *Store) ListActions(ctx context.Context, conversationID string) ([]*ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, conversation_id, action, input, output, status, created_at, resolved_at
		FROM action_log WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var entries []*ActionLogEntry
	for rows.Next() {
		entry, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}

	return entries, nil
}

// ListPendingActions returns pending_approval rows older than the cutoff
func (s *Store) ListPendingActions(ctx context.Context, olderThan time.Time) ([]*ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, conversation_id, action, input, output, status, created_at, resolved_at
		FROM action_log WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC`,
		ActionPendingApproval, olderThan.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending actions: %w", err)
	}
	defer rows.Close()

	var entries []*ActionLogEntry
	for rows.Next() {
		entry, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending actions: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*ActionLogEntry, error) {
	var e ActionLogEntry
	var input string
	var createdAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&e.ID, &e.AgentID, &e.ConversationID, &e.Action, &input,
		&e.Output, &e.Status, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan action log entry: %w", err)
	}

	e.CreatedAt = time.UnixMilli(createdAt)
	if resolvedAt.Valid {
		t := time.UnixMilli(resolvedAt.Int64)
		e.ResolvedAt = &t
	}
	if input != "" {
		if err := json.Unmarshal([]byte(input), &e.Input); err != nil {
			return nil, fmt.Errorf("failed to parse action input: %w", err)
		}
	}

	return &e, nil
}
