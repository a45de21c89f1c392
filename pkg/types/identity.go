package types

import "time"

type IdentityProviderKind string

const (
	IdentityProviderPassword IdentityProviderKind = "password"
	IdentityProviderOIDC     IdentityProviderKind = "oidc"
)

// Identity is what the identity provider knows about the signed in person.
// It carries no role or status.
type Identity struct {
	UID          string
	Email        string
	DisplayName  string
	PhotoURL     string
	Provider     IdentityProviderKind
	Token        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (i *Identity) Expired(now time.Time) bool {
	return i == nil || i.ExpiresAt.IsZero() || !now.Before(i.ExpiresAt)
}

// Credential is the identity provider's own persisted state, replayed on reload.
type Credential struct {
	Provider     IdentityProviderKind `json:"p"`
	Email        string               `json:"e"`
	RefreshToken string               `json:"r"`
}

func (c Credential) Empty() bool {
	return c.RefreshToken == ""
}

// IdentityChange is delivered whenever the identity behind a browser session
// is established or cleared. A nil Identity means signed out.
type IdentityChange struct {
	SessionID string
	Identity  *Identity
}
