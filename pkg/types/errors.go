package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailAlreadyInUse    = errors.New("email already in use")
	ErrPopupClosed          = errors.New("sign-in popup closed")
	ErrProviderError        = errors.New("identity provider error")
	ErrConfirmationRequired = errors.New("account confirmation required")

	ErrSessionExchangeFailed = errors.New("session exchange failed")
	ErrProfileFetchFailed    = errors.New("profile fetch failed")
	ErrSessionNotFound       = errors.New("session not found")

	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrMalformedResponse = errors.New("malformed response")

	ErrUserBlocked         = errors.New("user is blocked")
	ErrPaymentNotSucceeded = errors.New("payment did not succeed")
)

// IdentityError is a failure reported by the identity provider. It is
// surfaced to the form that started the flow and never retried.
type IdentityError struct {
	Kind error
	Err  error
}

func (e *IdentityError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *IdentityError) Is(target error) bool {
	return target == e.Kind
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

func NewIdentityError(kind, err error) *IdentityError {
	return &IdentityError{Kind: kind, Err: err}
}

// APIError is a non-2xx backend response passed through to the caller.
// A 401, or a 403 reporting a blocked account, also matches ErrUnauthorized.
type APIError struct {
	StatusCode int
	Message    string
	Blocked    bool
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == 401 || (e.StatusCode == 403 && e.Blocked)
	case ErrForbidden:
		return e.StatusCode == 403
	case ErrUserBlocked:
		return e.Blocked
	}
	return false
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}
