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

// CreateServer creates a server, its OWNER membership for the creator, and a
// default "general" channel in one transaction.
func (s *Store) CreateServer(ctx context.Context, name, ownerID string) (model.Server, model.Channel, error) {
	now := time.Now().UTC()
	server := model.Server{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
	}
	general := model.Channel{
		ID:        uuid.NewString(),
		ServerID:  server.ID,
		Name:      "general",
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Server{}, model.Channel{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO servers (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		server.ID, server.Name, server.OwnerID, toMillis(now)); err != nil {
		return model.Server{}, model.Channel{}, fmt.Errorf("insert server: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO server_members (server_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		server.ID, ownerID, model.RoleOwner.String(), toMillis(now)); err != nil {
		return model.Server{}, model.Channel{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, server_id, name, created_at) VALUES (?, ?, ?, ?)`,
		general.ID, general.ServerID, general.Name, toMillis(now)); err != nil {
		return model.Server{}, model.Channel{}, fmt.Errorf("insert default channel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Server{}, model.Channel{}, fmt.Errorf("commit: %w", err)
	}
	return server, general, nil
}

// ServerByID loads a server.
func (s *Store) ServerByID(ctx context.Context, id string) (model.Server, error) {
	var srv model.Server
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM servers WHERE id = ?`, id).
		Scan(&srv.ID, &srv.Name, &srv.OwnerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Server{}, ErrNotFound
	}
	if err != nil {
		return model.Server{}, fmt.Errorf("scan server: %w", err)
	}
	srv.CreatedAt = fromMillis(createdAt)
	return srv, nil
}

// ServersForUser lists servers the user is a member of, newest first.
func (s *Store) ServersForUser(ctx context.Context, userID string) ([]model.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.owner_id, s.created_at
		FROM servers s
		JOIN server_members m ON m.server_id = s.id
		WHERE m.user_id = ?
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []model.Server
	for rows.Next() {
		var srv model.Server
		var createdAt int64
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		srv.CreatedAt = fromMillis(createdAt)
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// MemberRole returns the user's role on the server; ok is false for
// non-members.
func (s *Store) MemberRole(ctx context.Context, serverID, userID string) (model.Role, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM server_members WHERE server_id = ? AND user_id = ?`,
		serverID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RoleUnknown, false, nil
	}
	if err != nil {
		return model.RoleUnknown, false, fmt.Errorf("query member role: %w", err)
	}

	role, err := model.ParseRole(raw)
	if err != nil {
		return model.RoleUnknown, false, fmt.Errorf("member %s on server %s: %w", userID, serverID, err)
	}
	return role, true, nil
}

// UpsertMember adds the user to the server with the given role, keeping the
// existing role when the membership already exists (invite re-redemption is a
// no-op, it never demotes).
func (s *Store) UpsertMember(ctx context.Context, serverID, userID string, role model.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_members (server_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (server_id, user_id) DO NOTHING`,
		serverID, userID, role.String(), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// UpdateMemberRole sets the target member's role. Role-change policy (only
// OWNER may call, OWNER rows immutable, only ADMIN/MEMBER assignable) is
// enforced by the API layer; this is the raw write.
func (s *Store) UpdateMemberRole(ctx context.Context, serverID, userID string, role model.Role) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE server_members SET role = ? WHERE server_id = ? AND user_id = ?`,
		role.String(), serverID, userID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
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

// MembersForServer lists the server's memberships.
func (s *Store) MembersForServer(ctx context.Context, serverID string) ([]model.ServerMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, user_id, role, created_at
		FROM server_members WHERE server_id = ? ORDER BY created_at ASC`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []model.ServerMember
	for rows.Next() {
		var m model.ServerMember
		var raw string
		var createdAt int64
		if err := rows.Scan(&m.ServerID, &m.UserID, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		role, err := model.ParseRole(raw)
		if err != nil {
			return nil, err
		}
		m.Role = role
		m.CreatedAt = fromMillis(createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}
