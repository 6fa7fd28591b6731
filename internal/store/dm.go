package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/concordhq/concord/internal/model"
)

// sortPair canonicalizes a participant pair so the unordered pair of users
// always maps to the same conversation row.
func sortPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// UpsertConversation returns the conversation between the two users, creating
// it if absent. The participants are immutable once created.
func (s *Store) UpsertConversation(ctx context.Context, userID, targetUserID string) (model.Conversation, error) {
	if userID == targetUserID {
		return model.Conversation{}, fmt.Errorf("conversation requires two distinct users")
	}
	userA, userB := sortPair(userID, targetUserID)

	conv := model.Conversation{
		ID:        uuid.NewString(),
		UserAID:   userA,
		UserBID:   userB,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dm_conversations (id, user_a_id, user_b_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_a_id, user_b_id) DO NOTHING`,
		conv.ID, conv.UserAID, conv.UserBID, toMillis(conv.CreatedAt))
	if err != nil {
		return model.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	// Read back to cover the conflict path, where the existing row wins.
	return s.conversationByPair(ctx, userA, userB)
}

func (s *Store) conversationByPair(ctx context.Context, userA, userB string) (model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_a_id, user_b_id, created_at
		FROM dm_conversations WHERE user_a_id = ? AND user_b_id = ?`, userA, userB)
	return scanConversation(row)
}

// ConversationByID loads a conversation.
func (s *Store) ConversationByID(ctx context.Context, id string) (model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_a_id, user_b_id, created_at
		FROM dm_conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (model.Conversation, error) {
	var c model.Conversation
	var createdAt int64
	err := row.Scan(&c.ID, &c.UserAID, &c.UserBID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// ConversationsForUser lists conversations the user participates in, newest
// first.
func (s *Store) ConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_a_id, user_b_id, created_at
		FROM dm_conversations
		WHERE user_a_id = ? OR user_b_id = ?
		ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.UserAID, &c.UserBID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// CreateDMMessage persists a direct message and assigns its identity.
func (s *Store) CreateDMMessage(ctx context.Context, conversationID, authorID, content string) (model.Message, error) {
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dm_messages (id, conversation_id, author_id, content, created_at, is_edited) VALUES (?, ?, ?, ?, ?, 0)`,
		msg.ID, msg.ConversationID, msg.AuthorID, msg.Content, toMillis(msg.CreatedAt))
	if err != nil {
		return model.Message{}, fmt.Errorf("insert dm message: %w", err)
	}
	return msg, nil
}

// DMMessageByID loads a direct message.
func (s *Store) DMMessageByID(ctx context.Context, id string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, author_id, content, created_at, is_edited, deleted_at
		FROM dm_messages WHERE id = ?`, id)
	return scanMessage(row, true)
}

// DMMessagesForConversation lists a conversation's messages oldest first.
func (s *Store) DMMessagesForConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, author_id, content, created_at, is_edited, deleted_at
		FROM dm_messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, conversationID, messageListLimit)
	if err != nil {
		return nil, fmt.Errorf("query dm messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectMessages(rows, true)
}

// UpdateDMMessageContent replaces a direct message's content and marks it
// edited.
func (s *Store) UpdateDMMessageContent(ctx context.Context, id, content string) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dm_messages SET content = ?, is_edited = 1 WHERE id = ? AND deleted_at IS NULL`,
		content, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("update dm message: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.Message{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return model.Message{}, ErrNotFound
	}
	return s.DMMessageByID(ctx, id)
}

// TombstoneDMMessage soft-deletes a direct message.
func (s *Store) TombstoneDMMessage(ctx context.Context, id string) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dm_messages SET content = ?, deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		model.DeletedContent, toMillis(time.Now()), id)
	if err != nil {
		return model.Message{}, fmt.Errorf("tombstone dm message: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.Message{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return model.Message{}, ErrNotFound
	}
	return s.DMMessageByID(ctx, id)
}
