package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/concordhq/concord/internal/model"
)

// RoleByChannel resolves the user's role on the server that owns the channel.
// It implements membership.Directory; ok is false when the channel is unknown
// or the user is not a member of its server.
func (s *Store) RoleByChannel(ctx context.Context, channelID, userID string) (model.Role, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT m.role
		FROM channels c
		JOIN server_members m ON m.server_id = c.server_id
		WHERE c.id = ? AND m.user_id = ?`, channelID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RoleUnknown, false, nil
	}
	if err != nil {
		return model.RoleUnknown, false, fmt.Errorf("query role by channel: %w", err)
	}

	role, err := model.ParseRole(raw)
	if err != nil {
		return model.RoleUnknown, false, err
	}
	return role, true, nil
}
