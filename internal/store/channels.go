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

// CreateChannel adds a channel to a server.
func (s *Store) CreateChannel(ctx context.Context, serverID, name string) (model.Channel, error) {
	ch := model.Channel{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, server_id, name, created_at) VALUES (?, ?, ?, ?)`,
		ch.ID, ch.ServerID, ch.Name, toMillis(ch.CreatedAt))
	if err != nil {
		return model.Channel{}, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

// ChannelByID loads a channel.
func (s *Store) ChannelByID(ctx context.Context, id string) (model.Channel, error) {
	var ch model.Channel
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, server_id, name, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.ServerID, &ch.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, ErrNotFound
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("scan channel: %w", err)
	}
	ch.CreatedAt = fromMillis(createdAt)
	return ch, nil
}

// ChannelsForServer lists a server's channels oldest first.
func (s *Store) ChannelsForServer(ctx context.Context, serverID string) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, server_id, name, created_at FROM channels WHERE server_id = ? ORDER BY created_at ASC`,
		serverID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.ServerID, &ch.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.CreatedAt = fromMillis(createdAt)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// CountChannels returns how many channels the server has.
func (s *Store) CountChannels(ctx context.Context, serverID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channels WHERE server_id = ?`, serverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	return n, nil
}

// DeleteChannel removes a channel and, via cascade, its messages.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
