// Package guard decides what a navigation to a protected route should do
// given the current session.
package guard

import "pulsepoint/pkg/types"

type Outcome int

const (
	// Render lets the protected content through.
	Render Outcome = iota
	// Suspend shows a loading placeholder; the session is still being
	// established and no redirect may happen yet.
	Suspend
	// RedirectSignIn sends the visitor to sign in, remembering where they
	// were going.
	RedirectSignIn
	// RedirectForbidden sends a signed-in user without the required role
	// back to their dashboard.
	RedirectForbidden
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Suspend:
		return "suspend"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectForbidden:
		return "redirect_forbidden"
	}
	return "unknown"
}

const (
	SignInPath    = "/login"
	ForbiddenPath = "/dashboard"
)

// Requirement is what a route asks of the session. A zero Role means any
// signed-in user.
type Requirement struct {
	Role types.Role
}

func Authenticated() Requirement {
	return Requirement{}
}

func RequireRole(role types.Role) Requirement {
	return Requirement{Role: role}
}

func (r Requirement) String() string {
	if r.Role == "" {
		return "authenticated"
	}
	return string(r.Role)
}

type Decision struct {
	Outcome Outcome
	// Location is set for redirects.
	Location string
	// From is the location to return to after signing in.
	From string
}

// Decide is pure: the same session, requirement and location always give
// the same decision.
func Decide(sess types.Session, req Requirement, location string) Decision {
	switch sess.State {
	case types.SessionUnknown:
		return Decision{Outcome: Suspend}
	case types.SessionAuthenticated:
		if sess.Profile == nil {
			return Decision{Outcome: Suspend}
		}
		if req.Role != "" && sess.Profile.Role != req.Role {
			return Decision{Outcome: RedirectForbidden, Location: ForbiddenPath}
		}
		return Decision{Outcome: Render}
	}

	return Decision{Outcome: RedirectSignIn, Location: SignInPath, From: location}
}
