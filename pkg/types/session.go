package types

import "time"

type SessionState string

const (
	SessionUnknown       SessionState = "unknown"
	SessionAnonymous     SessionState = "anonymous"
	SessionAuthenticated SessionState = "authenticated"
)

// Session is an immutable snapshot of a browser session.
type Session struct {
	ID           string       `json:"-"`
	State        SessionState `json:"state"`
	SessionToken string       `json:"-"`
	Profile      *UserProfile `json:"profile,omitempty"`
	Generation   uint64       `json:"-"`
}

func (s Session) Authenticated() bool {
	return s.State == SessionAuthenticated && s.Profile != nil
}

func (s Session) HasRole(role Role) bool {
	return s.Authenticated() && s.Profile.Role == role
}

// PersistedSession is the durable part of a session: the session token and
// the minimal profile.
type PersistedSession struct {
	SessionID    string       `db:"session_id"`
	SessionToken string       `db:"session_token"`
	Profile      *UserProfile `db:"profile"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (p *PersistedSession) Empty() bool {
	return p == nil || p.SessionToken == ""
}

type SessionEventKind string

const (
	SessionEventExchangeStarted    SessionEventKind = "EXCHANGE_STARTED"
	SessionEventAuthenticated      SessionEventKind = "AUTHENTICATED"
	SessionEventExchangeFailed     SessionEventKind = "EXCHANGE_FAILED"
	SessionEventSignedOut          SessionEventKind = "SIGNED_OUT"
	SessionEventUnauthorized       SessionEventKind = "UNAUTHORIZED"
	SessionEventRoleRefreshed      SessionEventKind = "ROLE_REFRESHED"
	SessionEventExchangeSuperseded SessionEventKind = "EXCHANGE_SUPERSEDED"
)

type SessionEvent struct {
	ID        string           `db:"id"`
	SessionID string           `db:"session_id"`
	Email     *string          `db:"email"`
	Kind      SessionEventKind `db:"kind"`
	Detail    *string          `db:"detail"`
	CreatedAt time.Time        `db:"created_at"`
}
