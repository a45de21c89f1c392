package types

import "strings"

type Role string

const (
	RoleDonor     Role = "donor"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalises a role reported by the backend. Anything unrecognised is a donor.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleVolunteer:
		return RoleVolunteer
	default:
		return RoleDonor
	}
}

func (r Role) Valid() bool {
	return r == RoleDonor || r == RoleVolunteer || r == RoleAdmin
}

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

func ParseUserStatus(s string) UserStatus {
	if UserStatus(strings.ToLower(strings.TrimSpace(s))) == UserStatusBlocked {
		return UserStatusBlocked
	}
	return UserStatusActive
}

func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusBlocked
}

// UserProfile is the backend's record of a user. Role and Status are only
// trusted as returned by the backend.
type UserProfile struct {
	ID         string     `json:"_id,omitempty"`
	Email      string     `json:"email"`
	Name       string     `json:"name,omitempty"`
	AvatarURL  string     `json:"avatar,omitempty"`
	Role       Role       `json:"role"`
	Status     UserStatus `json:"status"`
	BloodGroup BloodGroup `json:"bloodGroup,omitempty"`
	Division   string     `json:"division,omitempty"`
	District   string     `json:"district,omitempty"`
}

func (p *UserProfile) IsBlocked() bool {
	return p != nil && p.Status == UserStatusBlocked
}

// Minimal returns the subset of the profile that is persisted with a session.
func (p UserProfile) Minimal() UserProfile {
	return UserProfile{
		ID:        p.ID,
		Email:     p.Email,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Role:      p.Role,
		Status:    p.Status,
	}
}

type Donor struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	AvatarURL  string     `json:"avatar,omitempty"`
	BloodGroup BloodGroup `json:"bloodGroup"`
	Division   string     `json:"division"`
	District   string     `json:"district"`
}
