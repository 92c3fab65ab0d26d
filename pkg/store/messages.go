package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// AppendMessage inserts a transcript entry. Messages are write-once; there is
// deliberately no update or delete operation for them.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("message conversation id is required")
	}
	if msg.Content == "" {
		return fmt.Errorf("message content is required")
	}
	if msg.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate message id: %w", err)
		}
		msg.ID = id
	}
	if msg.ContentType == "" {
		msg.ContentType = ContentText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	metadata := "{}"
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_kind, sender_id, content,
			content_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderKind, msg.SenderID, msg.Content,
		msg.ContentType, metadata, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", msg.ConversationID).
		Str("content_type", string(msg.ContentType)).
		Msg("Message appended")

	return nil
}

// ListMessages returns all messages of a conversation in creation order
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_kind, sender_id, content, content_type, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var metadata string
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderKind, &m.SenderID,
			&m.Content, &m.ContentType, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.CreatedAt = time.UnixMilli(createdAt)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse message metadata: %w", err)
			}
		}

		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}
