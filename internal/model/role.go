package model

import "fmt"

// Role is a server membership role. It is a closed enum: every switch over a
// Role handles all three values plus RoleUnknown for corrupt input.
type Role int

const (
	// RoleUnknown is the zero value for unparseable role strings.
	RoleUnknown Role = iota
	// RoleMember is the default role granted on invite redemption.
	RoleMember
	// RoleAdmin may manage channels, invites, and other members' messages.
	RoleAdmin
	// RoleOwner is the single immutable top role per server.
	RoleOwner
)

// ParseRole maps a stored role string to its enum value.
func ParseRole(s string) (Role, error) {
	switch s {
	case "OWNER":
		return RoleOwner, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "MEMBER":
		return RoleMember, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

// String returns the canonical stored form of the role.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "OWNER"
	case RoleAdmin:
		return "ADMIN"
	case RoleMember:
		return "MEMBER"
	case RoleUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// CanModerate reports whether the role may act on other members' channel
// messages and manage channels and invites.
func (r Role) CanModerate() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember, RoleUnknown:
		return false
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so roles serialize as their
// canonical strings in JSON payloads.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
