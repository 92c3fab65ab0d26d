package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateConversation inserts a new conversation
func (s *Store) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate conversation id: %w", err)
		}
		conv.ID = id
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, org_id, title, last_message_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.OrgID, conv.Title, conv.LastMessageAt.UnixMilli(), conv.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

// GetConversation returns a conversation by id
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, title, last_message_at, created_at
		FROM conversations WHERE id = ?`, id)

	var c Conversation
	var lastMessageAt, createdAt int64

	err := row.Scan(&c.ID, &c.OrgID, &c.Title, &lastMessageAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	c.LastMessageAt = time.UnixMilli(lastMessageAt)
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}

// TouchConversation advances the conversation's lastMessageAt watermark
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
