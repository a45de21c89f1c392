// Package identity adapts the external identity providers, Cognito for
// password accounts and an OIDC provider for popup sign-in, into a single
// per-browser-session view of who is signed in.
//
// Every sign-in, sign-up, popup completion, restore and sign-out fires
// exactly one change to the registered listeners; that is the only way the
// rest of the portal learns about identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulsepoint/internal/utils"
	"pulsepoint/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/sirupsen/logrus"
)

const (
	popupTTL = 10 * time.Minute
	// Refresh identity tokens a little before they actually expire.
	expirySkew = 30 * time.Second
)

type pendingPopup struct {
	sessionID string
	nonce     string
	expires   time.Time
}

type Options struct {
	Cognito  CognitoAPI
	ClientID string
	Verifier TokenVerifier
	// Popup is optional; without it popup sign-in reports a provider error.
	Popup  PopupFlow
	Logger *logrus.Logger
}

type Adapter struct {
	cognito  CognitoAPI
	clientID string
	verifier TokenVerifier
	popup    PopupFlow
	logger   *logrus.Logger
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*types.Identity
	pending   map[string]pendingPopup
	listeners map[int]func(types.IdentityChange)
	nextID    int
}

func New(opts Options) *Adapter {
	return &Adapter{
		cognito:   opts.Cognito,
		clientID:  opts.ClientID,
		verifier:  opts.Verifier,
		popup:     opts.Popup,
		logger:    opts.Logger,
		now:       time.Now,
		sessions:  make(map[string]*types.Identity),
		pending:   make(map[string]pendingPopup),
		listeners: make(map[int]func(types.IdentityChange)),
	}
}

// OnIdentityChanged registers fn for every identity change. Listeners run
// synchronously on the goroutine that caused the change.
func (a *Adapter) OnIdentityChanged(fn func(types.IdentityChange)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.listeners[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *Adapter) notify(sessionID string, identity *types.Identity) {
	a.mu.Lock()
	listeners := make([]func(types.IdentityChange), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	var cp *types.Identity
	if identity != nil {
		v := *identity
		cp = &v
	}

	for _, fn := range listeners {
		fn(types.IdentityChange{SessionID: sessionID, Identity: cp})
	}
}

func (a *Adapter) establish(sessionID string, identity *types.Identity) *types.Identity {
	held := *identity

	a.mu.Lock()
	a.sessions[sessionID] = &held
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"email":      identity.Email,
		"provider":   identity.Provider,
	}).Info("identity established")

	a.notify(sessionID, &held)

	cp := held
	return &cp
}

// Identity returns the identity currently held for sessionID.
func (a *Adapter) Identity(sessionID string) (*types.Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	identity, ok := a.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *identity
	return &cp, true
}

// Credential is what the browser must keep so the identity can be restored
// later. It is empty when nothing is signed in.
func (a *Adapter) Credential(sessionID string) types.Credential {
	identity, ok := a.Identity(sessionID)
	if !ok {
		return types.Credential{}
	}
	return types.Credential{
		Provider:     identity.Provider,
		Email:        identity.Email,
		RefreshToken: identity.RefreshToken,
	}
}

func (a *Adapter) SignInWithPassword(ctx context.Context, sessionID, email, password string) (*types.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, types.NewIdentityError(types.ErrInvalidCredentials, nil)
	}

	identity, err := a.cognitoPasswordAuth(ctx, email, password)
	if err != nil {
		a.logger.WithError(err).WithField("email", email).Info("password sign-in failed")
		return nil, err
	}

	return a.establish(sessionID, identity), nil
}

// SignUp creates a password account. When the pool confirms the account
// immediately the new user is also signed in; otherwise the error is
// ErrConfirmationRequired and the caller should collect the code.
func (a *Adapter) SignUp(ctx context.Context, sessionID string, in SignUpInput) (*types.Identity, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	input := &cognitoidentityprovider.SignUpInput{
		ClientId:       aws.String(a.clientID),
		Username:       aws.String(in.Email),
		Password:       aws.String(in.Password),
		UserAttributes: signUpAttributes(in),
	}

	resp, err := a.cognito.SignUp(ctx, input)
	if err != nil {
		a.logger.WithError(err).WithField("email", in.Email).Error("failed to signup user")
		return nil, mapCognitoError(err)
	}

	if !resp.UserConfirmed {
		return nil, types.NewIdentityError(types.ErrConfirmationRequired, nil)
	}

	return a.SignInWithPassword(ctx, sessionID, in.Email, in.Password)
}

func (a *Adapter) ConfirmSignUp(ctx context.Context, email, code string) error {
	input := &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(a.clientID),
		Username:         aws.String(strings.ToLower(strings.TrimSpace(email))),
		ConfirmationCode: aws.String(strings.TrimSpace(code)),
	}

	if _, err := a.cognito.ConfirmSignUp(ctx, input); err != nil {
		a.logger.WithError(err).WithField("email", email).Error("failed to confirm user signup")
		return mapCognitoError(err)
	}

	return nil
}

// UpdateProfile sets the display name and photo on the signed-in identity.
// Only password accounts are written back to the provider.
func (a *Adapter) UpdateProfile(ctx context.Context, sessionID string, update ProfileUpdate) error {
	identity, ok := a.Identity(sessionID)
	if !ok {
		return types.NewIdentityError(types.ErrUserNotFound, types.ErrSessionNotFound)
	}

	if identity.Provider == types.IdentityProviderPassword && identity.AccessToken != "" {
		var attrs []ctypes.AttributeType
		if update.DisplayName != "" {
			attrs = append(attrs, ctypes.AttributeType{Name: aws.String("name"), Value: aws.String(update.DisplayName)})
		}
		if update.PhotoURL != "" {
			attrs = append(attrs, ctypes.AttributeType{Name: aws.String("picture"), Value: aws.String(update.PhotoURL)})
		}

		if len(attrs) > 0 {
			_, err := a.cognito.UpdateUserAttributes(ctx, &cognitoidentityprovider.UpdateUserAttributesInput{
				AccessToken:    aws.String(identity.AccessToken),
				UserAttributes: attrs,
			})
			if err != nil {
				return mapCognitoError(err)
			}
		}
	}

	a.mu.Lock()
	if current, ok := a.sessions[sessionID]; ok {
		next := *current
		if update.DisplayName != "" {
			next.DisplayName = update.DisplayName
		}
		if update.PhotoURL != "" {
			next.PhotoURL = update.PhotoURL
		}
		a.sessions[sessionID] = &next
	}
	a.mu.Unlock()

	return nil
}

// SignOut forgets the identity and fires a signed-out change. Revoking the
// refresh token is best effort; SignOut itself never fails and may be called
// any number of times.
func (a *Adapter) SignOut(ctx context.Context, sessionID string) {
	a.mu.Lock()
	identity := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	if identity != nil && identity.Provider == types.IdentityProviderPassword && identity.RefreshToken != "" {
		_, err := a.cognito.RevokeToken(ctx, &cognitoidentityprovider.RevokeTokenInput{
			ClientId: aws.String(a.clientID),
			Token:    aws.String(identity.RefreshToken),
		})
		if err != nil {
			a.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to revoke refresh token")
		}
	}

	a.notify(sessionID, nil)
}

// BeginPopup starts a popup sign-in and returns the provider URL to send
// the browser to.
func (a *Adapter) BeginPopup(sessionID string) (string, error) {
	if a.popup == nil {
		return "", types.NewIdentityError(types.ErrProviderError, errors.New("popup sign-in is not configured"))
	}

	state := utils.NanoID()
	nonce := utils.NanoID()
	now := a.now()

	a.mu.Lock()
	a.prunePendingLocked(now)
	a.pending[state] = pendingPopup{sessionID: sessionID, nonce: nonce, expires: now.Add(popupTTL)}
	a.mu.Unlock()

	return a.popup.AuthCodeURL(state, nonce), nil
}

// CompletePopup finishes a popup sign-in. providerError is the error the
// provider sent back instead of a code, if any.
func (a *Adapter) CompletePopup(ctx context.Context, sessionID, state, code, providerError string) (*types.Identity, error) {
	a.mu.Lock()
	pending, ok := a.pending[state]
	delete(a.pending, state)
	a.mu.Unlock()

	if !ok || pending.sessionID != sessionID || a.now().After(pending.expires) {
		return nil, types.NewIdentityError(types.ErrProviderError, errors.New("unknown or expired popup state"))
	}

	switch {
	case providerError == "access_denied", providerError == "" && code == "":
		return nil, types.NewIdentityError(types.ErrPopupClosed, nil)
	case providerError != "":
		return nil, types.NewIdentityError(types.ErrProviderError, fmt.Errorf("provider returned %s", providerError))
	}

	identity, err := a.popup.Exchange(ctx, code, pending.nonce)
	if err != nil {
		a.logger.WithError(err).WithField("session_id", sessionID).Error("popup sign-in failed")
		return nil, types.NewIdentityError(types.ErrProviderError, err)
	}

	return a.establish(sessionID, identity), nil
}

// Forget drops everything held for sessionID without firing a change. The
// session manager calls it when it evicts an idle browser session; the
// browser's credential cookie can still restore the identity later.
func (a *Adapter) Forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.sessions, sessionID)
	for state, p := range a.pending {
		if p.sessionID == sessionID {
			delete(a.pending, state)
		}
	}
	a.prunePendingLocked(a.now())
}

func (a *Adapter) prunePendingLocked(now time.Time) {
	for state, p := range a.pending {
		if now.After(p.expires) {
			delete(a.pending, state)
		}
	}
}

// Restore replays a browser's persisted credential and fires exactly one
// change with the result: the identity, or nil when there is none or it can
// no longer be refreshed.
func (a *Adapter) Restore(ctx context.Context, sessionID string, cred types.Credential) {
	if identity, ok := a.Identity(sessionID); ok {
		if !identity.Expired(a.now().Add(expirySkew)) {
			a.notify(sessionID, identity)
			return
		}
		if cred.Empty() {
			cred = types.Credential{Provider: identity.Provider, Email: identity.Email, RefreshToken: identity.RefreshToken}
		}
	}

	if cred.Empty() {
		a.notify(sessionID, nil)
		return
	}

	identity, err := a.refresh(ctx, cred)
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"provider":   cred.Provider,
		}).Info("could not restore identity")

		a.mu.Lock()
		delete(a.sessions, sessionID)
		a.mu.Unlock()

		a.notify(sessionID, nil)
		return
	}

	a.establish(sessionID, identity)
}

// IdentityToken returns the current identity token for sessionID,
// refreshing it through the provider when forced or when it has expired.
func (a *Adapter) IdentityToken(ctx context.Context, sessionID string, forceRefresh bool) (string, error) {
	identity, ok := a.Identity(sessionID)
	if !ok {
		return "", types.ErrSessionNotFound
	}

	if !forceRefresh && !identity.Expired(a.now().Add(expirySkew)) {
		return identity.Token, nil
	}

	refreshed, err := a.refresh(ctx, types.Credential{
		Provider:     identity.Provider,
		Email:        identity.Email,
		RefreshToken: identity.RefreshToken,
	})
	if err != nil {
		return "", err
	}

	held := *refreshed
	a.mu.Lock()
	a.sessions[sessionID] = &held
	a.mu.Unlock()

	return refreshed.Token, nil
}

func (a *Adapter) refresh(ctx context.Context, cred types.Credential) (*types.Identity, error) {
	if cred.RefreshToken == "" {
		return nil, types.NewIdentityError(types.ErrProviderError, errors.New("no refresh token"))
	}

	switch cred.Provider {
	case types.IdentityProviderPassword:
		return a.cognitoRefresh(ctx, cred.RefreshToken)
	case types.IdentityProviderOIDC:
		if a.popup == nil {
			return nil, types.NewIdentityError(types.ErrProviderError, errors.New("popup sign-in is not configured"))
		}
		identity, err := a.popup.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return nil, types.NewIdentityError(types.ErrProviderError, err)
		}
		return identity, nil
	}

	return nil, types.NewIdentityError(types.ErrProviderError, fmt.Errorf("unknown provider %q", cred.Provider))
}
