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

// messageListLimit caps history reads per channel or conversation.
const messageListLimit = 200

// CreateMessage persists a channel message and assigns its identity.
func (s *Store) CreateMessage(ctx context.Context, channelID, authorID, content string) (model.Message, error) {
	msg := model.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, author_id, content, created_at, is_edited) VALUES (?, ?, ?, ?, ?, 0)`,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, toMillis(msg.CreatedAt))
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MessageByID loads a channel message, tombstoned or not.
func (s *Store) MessageByID(ctx context.Context, id string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, author_id, content, created_at, is_edited, deleted_at
		FROM messages WHERE id = ?`, id)
	return scanMessage(row, false)
}

// MessagesForChannel lists a channel's messages oldest first, capped at
// messageListLimit.
func (s *Store) MessagesForChannel(ctx context.Context, channelID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, content, created_at, is_edited, deleted_at
		FROM messages WHERE channel_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, channelID, messageListLimit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectMessages(rows, false)
}

// UpdateMessageContent replaces a message's content and marks it edited.
// Tombstoned messages cannot be edited.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, is_edited = 1 WHERE id = ? AND deleted_at IS NULL`,
		content, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("update message: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.Message{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return model.Message{}, ErrNotFound
	}
	return s.MessageByID(ctx, id)
}

// TombstoneMessage soft-deletes a message: the row stays so clients keep its
// ordering position, with content replaced by the deletion marker.
func (s *Store) TombstoneMessage(ctx context.Context, id string) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		model.DeletedContent, toMillis(time.Now()), id)
	if err != nil {
		return model.Message{}, fmt.Errorf("tombstone message: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return model.Message{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return model.Message{}, ErrNotFound
	}
	return s.MessageByID(ctx, id)
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared message scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage reads one message row. The dm flag selects which parent id
// column the second field fills.
func scanMessage(row rowScanner, dm bool) (model.Message, error) {
	var m model.Message
	var parentID string
	var createdAt int64
	var edited int
	var deletedAt sql.NullInt64

	err := row.Scan(&m.ID, &parentID, &m.AuthorID, &m.Content, &createdAt, &edited, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("scan message: %w", err)
	}

	if dm {
		m.ConversationID = parentID
	} else {
		m.ChannelID = parentID
	}
	m.CreatedAt = fromMillis(createdAt)
	m.IsEdited = edited != 0
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		m.DeletedAt = &t
	}
	return m, nil
}

func collectMessages(rows *sql.Rows, dm bool) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows, dm)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
