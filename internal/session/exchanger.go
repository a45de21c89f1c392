package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/metrics"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Backend is the subset of the REST API the exchanger talks to. Calls that
// need a session token take the Session to authenticate with.
type Backend interface {
	ExchangeToken(ctx context.Context, identityToken, email string) (string, error)
	UserByEmail(ctx context.Context, sess backend.Session, email string) (*types.UserProfile, error)
	RoleByEmail(ctx context.Context, sess backend.Session, email string) (types.Role, error)
}

type clientBackend struct {
	client *backend.Client
}

// NewBackend adapts a backend.Client to Backend.
func NewBackend(client *backend.Client) Backend {
	return &clientBackend{client: client}
}

func (b *clientBackend) ExchangeToken(ctx context.Context, identityToken, email string) (string, error) {
	return b.client.ExchangeToken(ctx, identityToken, email)
}

func (b *clientBackend) UserByEmail(ctx context.Context, sess backend.Session, email string) (*types.UserProfile, error) {
	return b.client.WithSession(sess).UserByEmail(ctx, email)
}

func (b *clientBackend) RoleByEmail(ctx context.Context, sess backend.Session, email string) (types.Role, error) {
	return b.client.WithSession(sess).RoleByEmail(ctx, email)
}

const defaultExchangeTimeout = 15 * time.Second

// Exchanger turns identity changes into backend sessions. Each change for a
// store supersedes the one before it: the earlier exchange is cancelled and
// whatever it produces is thrown away.
type Exchanger struct {
	api     Backend
	logger  *logrus.Logger
	timeout time.Duration

	base  context.Context
	roles singleflight.Group
	wg    sync.WaitGroup
}

func NewExchanger(base context.Context, api Backend, timeout time.Duration, logger *logrus.Logger) *Exchanger {
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	return &Exchanger{
		api:     api,
		logger:  logger,
		timeout: timeout,
		base:    base,
	}
}

// Start handles one identity change for store and returns immediately. A nil
// identity signs the store out.
func (e *Exchanger) Start(store *Store, identity *types.Identity) {
	if identity == nil {
		e.signOut(store)
		return
	}

	ctx, cancel := context.WithTimeout(e.base, e.timeout)
	gen := store.begin(cancel)

	entry := e.logger.WithFields(logrus.Fields{
		"session_id": store.ID(),
		"email":      identity.Email,
		"provider":   identity.Provider,
		"generation": gen,
	})
	entry.Debug("session exchange started")

	store.record(ctx, identity.Email, types.SessionEventExchangeStarted, "")
	metrics.SessionTransitions.WithLabelValues(string(types.SessionEventExchangeStarted)).Inc()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(ctx, store, gen, identity, entry)
	}()
}

func (e *Exchanger) run(ctx context.Context, store *Store, gen uint64, identity *types.Identity, entry *logrus.Entry) {
	start := time.Now()
	token, profile, err := e.exchange(ctx, identity)

	// Writes below must outlive the exchange deadline.
	wctx := context.WithoutCancel(ctx)

	if err == nil {
		if !store.complete(wctx, gen, token, profile) {
			e.superseded(store, identity, start, entry)
			return
		}

		metrics.ExchangeDuration.WithLabelValues("authenticated").Observe(time.Since(start).Seconds())
		metrics.SessionTransitions.WithLabelValues(string(types.SessionEventAuthenticated)).Inc()
		store.record(wctx, profile.Email, types.SessionEventAuthenticated, string(profile.Role))

		entry.WithField("role", profile.Role).Info("session authenticated")
		return
	}

	if errors.Is(err, context.Canceled) && !store.current(gen) {
		e.superseded(store, identity, start, entry)
		return
	}

	if !store.fail(wctx, gen, err) {
		e.superseded(store, identity, start, entry)
		return
	}

	metrics.ExchangeDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
	metrics.SessionTransitions.WithLabelValues(string(types.SessionEventExchangeFailed)).Inc()
	store.record(wctx, identity.Email, types.SessionEventExchangeFailed, err.Error())

	entry.WithError(err).Warn("session exchange failed")
}

func (e *Exchanger) superseded(store *Store, identity *types.Identity, start time.Time, entry *logrus.Entry) {
	metrics.ExchangeDuration.WithLabelValues("superseded").Observe(time.Since(start).Seconds())
	metrics.SessionTransitions.WithLabelValues(string(types.SessionEventExchangeSuperseded)).Inc()
	store.record(context.Background(), identity.Email, types.SessionEventExchangeSuperseded, "")
	entry.Debug("session exchange superseded")
}

// exchange runs step A then step B. Step B authenticates with the token step
// A produced and nothing else.
func (e *Exchanger) exchange(ctx context.Context, identity *types.Identity) (string, *types.UserProfile, error) {
	email := strings.TrimSpace(identity.Email)
	if identity.Token == "" || email == "" {
		return "", nil, fmt.Errorf("%w: identity has no token or email", types.ErrSessionExchangeFailed)
	}

	token, err := e.api.ExchangeToken(ctx, identity.Token, email)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", types.ErrSessionExchangeFailed, err)
	}
	if token == "" {
		return "", nil, fmt.Errorf("%w: empty session token", types.ErrSessionExchangeFailed)
	}

	profile, err := e.api.UserByEmail(ctx, backend.StaticToken(token), email)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", types.ErrProfileFetchFailed, err)
	}
	if !strings.EqualFold(profile.Email, email) {
		return "", nil, fmt.Errorf("%w: profile email %q does not match %q", types.ErrProfileFetchFailed, profile.Email, email)
	}

	return token, profile, nil
}

func (e *Exchanger) signOut(store *Store) {
	ctx := e.base
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}

	email, changed := store.signOut(ctx)
	if !changed {
		return
	}

	metrics.SessionTransitions.WithLabelValues(string(types.SessionEventSignedOut)).Inc()
	store.record(ctx, email, types.SessionEventSignedOut, "")

	e.logger.WithFields(logrus.Fields{
		"session_id": store.ID(),
		"email":      email,
	}).Info("session signed out")
}

// RefreshRole asks the backend for the current role of the signed-in user
// and updates the cached profile. Concurrent refreshes for one store share a
// single request. If the session changed while the request was in flight the
// answer is discarded.
func (e *Exchanger) RefreshRole(ctx context.Context, store *Store) (types.Session, error) {
	snap := store.Snapshot()
	if !snap.Authenticated() {
		return snap, types.ErrUnauthorized
	}

	key := fmt.Sprintf("%s:%d", store.ID(), snap.Generation)
	v, err, _ := e.roles.Do(key, func() (any, error) {
		return e.api.RoleByEmail(ctx, store, snap.Profile.Email)
	})
	if err != nil {
		return store.Snapshot(), fmt.Errorf("refresh role: %w", err)
	}

	role := v.(types.Role)
	profile := *snap.Profile
	previous := profile.Role
	profile.Role = role

	if !store.updateProfile(ctx, snap.Generation, &profile) {
		e.logger.WithField("session_id", store.ID()).Debug("role refresh discarded, session changed")
		return store.Snapshot(), nil
	}

	if previous != role {
		metrics.SessionTransitions.WithLabelValues(string(types.SessionEventRoleRefreshed)).Inc()
		store.record(ctx, profile.Email, types.SessionEventRoleRefreshed, fmt.Sprintf("%s -> %s", previous, role))
		e.logger.WithFields(logrus.Fields{
			"session_id": store.ID(),
			"email":      profile.Email,
			"from":       previous,
			"to":         role,
		}).Info("session role refreshed")
	}

	return store.Snapshot(), nil
}

// RefreshProfile refetches the signed-in user's profile, typically after the
// user edited it.
func (e *Exchanger) RefreshProfile(ctx context.Context, store *Store) (types.Session, error) {
	snap := store.Snapshot()
	if !snap.Authenticated() {
		return snap, types.ErrUnauthorized
	}

	profile, err := e.api.UserByEmail(ctx, store, snap.Profile.Email)
	if err != nil {
		return store.Snapshot(), fmt.Errorf("refresh profile: %w", err)
	}

	store.updateProfile(ctx, snap.Generation, profile)
	return store.Snapshot(), nil
}

// Wait blocks until every running exchange has finished.
func (e *Exchanger) Wait() {
	e.wg.Wait()
}
