package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/concordhq/concord/internal/model"
)

// ErrInviteInvalid is returned when an invite token is unknown or revoked.
var ErrInviteInvalid = errors.New("invalid invite")

// ErrInviteExpired is returned when an invite is past its expiry.
var ErrInviteExpired = errors.New("invite expired")

// ErrInviteExhausted is returned when an invite hit its usage cap.
var ErrInviteExhausted = errors.New("invite usage limit reached")

// newInviteToken generates an unguessable invite token.
func newInviteToken() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateInvite mints an invite for a server. expiresIn and maxUses of zero
// mean unlimited.
func (s *Store) CreateInvite(ctx context.Context, serverID, createdByID string, expiresIn time.Duration, maxUses int) (model.Invite, error) {
	token, err := newInviteToken()
	if err != nil {
		return model.Invite{}, err
	}

	now := time.Now().UTC()
	inv := model.Invite{
		ID:          uuid.NewString(),
		ServerID:    serverID,
		Token:       token,
		CreatedByID: createdByID,
		MaxUses:     maxUses,
		Active:      true,
		CreatedAt:   now,
	}
	var expiresAt any
	if expiresIn > 0 {
		t := now.Add(expiresIn)
		inv.ExpiresAt = &t
		expiresAt = toMillis(t)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invites (id, server_id, token, created_by_id, expires_at, max_uses, use_count, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 1, ?)`,
		inv.ID, inv.ServerID, inv.Token, inv.CreatedByID, expiresAt, inv.MaxUses, toMillis(now))
	if err != nil {
		return model.Invite{}, fmt.Errorf("insert invite: %w", err)
	}
	return inv, nil
}

// InvitesForServer lists a server's active invites, newest first.
func (s *Store) InvitesForServer(ctx context.Context, serverID string) ([]model.Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, token, created_by_id, expires_at, max_uses, use_count, is_active, created_at
		FROM invites WHERE server_id = ? AND is_active = 1
		ORDER BY created_at DESC`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invites []model.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// InviteByToken loads an invite by its token.
func (s *Store) InviteByToken(ctx context.Context, token string) (model.Invite, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, server_id, token, created_by_id, expires_at, max_uses, use_count, is_active, created_at
		FROM invites WHERE token = ?`, token)
	inv, err := scanInvite(row)
	if errors.Is(err, ErrNotFound) {
		return model.Invite{}, ErrInviteInvalid
	}
	return inv, err
}

// RedeemInvite validates the token and joins the user to the invite's server
// as MEMBER, incrementing the use count. Existing members keep their role.
func (s *Store) RedeemInvite(ctx context.Context, token, userID string) (model.Server, error) {
	inv, err := s.InviteByToken(ctx, token)
	if err != nil {
		return model.Server{}, err
	}

	now := time.Now().UTC()
	switch {
	case !inv.Active:
		return model.Server{}, ErrInviteInvalid
	case inv.ExpiresAt != nil && inv.ExpiresAt.Before(now):
		return model.Server{}, ErrInviteExpired
	case inv.MaxUses > 0 && inv.UseCount >= inv.MaxUses:
		return model.Server{}, ErrInviteExhausted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Server{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO server_members (server_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (server_id, user_id) DO NOTHING`,
		inv.ServerID, userID, model.RoleMember.String(), toMillis(now)); err != nil {
		return model.Server{}, fmt.Errorf("join server: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE invites SET use_count = use_count + 1 WHERE id = ?`, inv.ID); err != nil {
		return model.Server{}, fmt.Errorf("increment invite use: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Server{}, fmt.Errorf("commit: %w", err)
	}

	return s.ServerByID(ctx, inv.ServerID)
}

func scanInvite(row rowScanner) (model.Invite, error) {
	var inv model.Invite
	var expiresAt sql.NullInt64
	var active int
	var createdAt int64

	err := row.Scan(&inv.ID, &inv.ServerID, &inv.Token, &inv.CreatedByID,
		&expiresAt, &inv.MaxUses, &inv.UseCount, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invite{}, ErrNotFound
	}
	if err != nil {
		return model.Invite{}, fmt.Errorf("scan invite: %w", err)
	}

	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		inv.ExpiresAt = &t
	}
	inv.Active = active != 0
	inv.CreatedAt = fromMillis(createdAt)
	return inv, nil
}
