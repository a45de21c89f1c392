// Package session owns browser sessions: the per-browser state machine, the
// exchange of identity tokens for backend sessions, and their persistence.
//
// A Store moves between three states:
//
//	unknown       -> authenticated  exchange succeeded
//	unknown       -> anonymous      no identity, sign-out or exchange failure
//	authenticated -> anonymous      sign-out or 401 from the backend
//	anonymous     -> unknown        a new identity arrived, exchange running
//
// Only the Exchanger (through unexported methods) and Invalidate write to a
// Store. Everything else reads Snapshots.
package session

import (
	"context"
	"sync"

	"pulsepoint/internal/metrics"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

// Persister holds the durable half of a session: the session token and the
// minimal profile. Both are written and cleared together.
type Persister interface {
	Load(ctx context.Context, sessionID string) (*types.PersistedSession, error)
	Save(ctx context.Context, sess *types.PersistedSession) error
	Clear(ctx context.Context, sessionID string) error
}

// EventRecorder receives every state transition. It is optional.
type EventRecorder interface {
	RecordSessionEvent(ctx context.Context, sessionID, email string, kind types.SessionEventKind, detail string) error
}

type Store struct {
	id        string
	persister Persister
	events    EventRecorder
	logger    *logrus.Logger

	// persistMu orders writes to the persister. A Save only happens while
	// the generation that produced it is still current, and a Clear always
	// lands after any Save that passed that check.
	persistMu sync.Mutex

	mu          sync.RWMutex
	state       types.SessionState
	token       string
	profile     *types.UserProfile
	stale       *types.UserProfile
	generation  uint64
	lastErr     error
	ready       chan struct{}
	subscribers map[int]chan types.Session
	nextSub     int
	cancel      context.CancelFunc
}

func newStore(id string, persister Persister, events EventRecorder, logger *logrus.Logger) *Store {
	return &Store{
		id:          id,
		persister:   persister,
		events:      events,
		logger:      logger,
		state:       types.SessionAnonymous,
		ready:       closedChan(),
		subscribers: make(map[int]chan types.Session),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (s *Store) ID() string {
	return s.id
}

// Snapshot returns the current state. The returned profile is a copy.
func (s *Store) Snapshot() types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() types.Session {
	snap := types.Session{
		ID:           s.id,
		State:        s.state,
		SessionToken: s.token,
		Generation:   s.generation,
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

// StaleProfile is the profile loaded from persistence before the current
// exchange confirmed it. Never use it for access decisions.
func (s *Store) StaleProfile() *types.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stale == nil {
		return nil
	}
	p := *s.stale
	return &p
}

// LastError is the reason the most recent exchange failed, if it did.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Token implements backend.Session.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != types.SessionAuthenticated {
		return ""
	}
	return s.token
}

// Ready blocks until the store leaves the unknown state or ctx ends.
func (s *Store) Ready(ctx context.Context) (types.Session, error) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	select {
	case <-ready:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Subscribe delivers a snapshot after every transition. The channel is
// buffered; a subscriber that falls behind misses intermediate snapshots.
func (s *Store) Subscribe(buffer int) (<-chan types.Session, func()) {
	if buffer < 1 {
		buffer = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan types.Session, buffer)
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Invalidate drops the session after the backend refused token. It is the
// only exported write. A token the store no longer holds is ignored, so a
// late 401 for an earlier session cannot end a newer one.
func (s *Store) Invalidate(ctx context.Context, token string, reason error) {
	s.mu.Lock()
	if s.state != types.SessionAuthenticated || token == "" || s.token != token {
		s.mu.Unlock()
		return
	}

	email := s.emailLocked()
	s.toAnonymousLocked()
	s.mu.Unlock()

	s.clearPersisted(ctx)

	detail := ""
	if reason != nil {
		detail = reason.Error()
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"email":      email,
	}).WithError(reason).Info("session invalidated")

	s.record(ctx, email, types.SessionEventUnauthorized, detail)
	metrics.SessionTransitions.WithLabelValues(string(types.SessionEventUnauthorized)).Inc()
}

// begin moves the store to unknown for a new exchange, cancelling any
// exchange still running. It returns the generation the exchange must
// present when it finishes.
func (s *Store) begin(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel

	s.generation++
	s.lastErr = nil
	if s.state != types.SessionUnknown {
		s.ready = make(chan struct{})
	}
	if s.profile != nil {
		s.stale = s.profile
	}
	s.state = types.SessionUnknown
	s.token = ""
	s.profile = nil
	s.publishLocked()

	return s.generation
}

// startUnknown puts a freshly created store into unknown while persisted
// state waits to be revalidated.
func (s *Store) startUnknown(persisted *types.PersistedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = types.SessionUnknown
	s.ready = make(chan struct{})
	if persisted != nil {
		s.stale = persisted.Profile
	}
}

func (s *Store) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

// complete lands a successful exchange. A superseded generation is ignored.
func (s *Store) complete(ctx context.Context, gen uint64, token string, profile *types.UserProfile) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}

	s.state = types.SessionAuthenticated
	s.token = token
	p := *profile
	s.profile = &p
	s.stale = nil
	s.cancel = nil
	s.markReadyLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.persist(ctx, gen, token, profile)
	return true
}

// fail lands a failed exchange. A superseded generation is ignored.
func (s *Store) fail(ctx context.Context, gen uint64, reason error) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.toAnonymousLocked()
	s.lastErr = reason
	s.mu.Unlock()

	s.clearPersisted(ctx)
	return true
}

// signOut cancels any running exchange and clears the session. Signing out
// an anonymous store is a no-op apart from clearing persistence.
func (s *Store) signOut(ctx context.Context) (email string, changed bool) {
	s.mu.Lock()
	changed = s.state != types.SessionAnonymous
	email = s.emailLocked()
	if changed {
		s.toAnonymousLocked()
	}
	s.mu.Unlock()

	s.clearPersisted(ctx)
	return email, changed
}

// updateProfile replaces the cached profile, as long as the store is still
// on gen and authenticated.
func (s *Store) updateProfile(ctx context.Context, gen uint64, profile *types.UserProfile) bool {
	s.mu.Lock()
	if s.generation != gen || s.state != types.SessionAuthenticated || s.profile == nil {
		s.mu.Unlock()
		return false
	}

	p := *profile
	s.profile = &p
	token := s.token
	s.publishLocked()
	s.mu.Unlock()

	s.persist(ctx, gen, token, profile)
	return true
}

func (s *Store) toAnonymousLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = types.SessionAnonymous
	s.token = ""
	s.profile = nil
	s.stale = nil
	s.markReadyLocked()
	s.publishLocked()
}

func (s *Store) markReadyLocked() {
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
}

func (s *Store) emailLocked() string {
	if s.profile != nil {
		return s.profile.Email
	}
	if s.stale != nil {
		return s.stale.Email
	}
	return ""
}

// persist writes the session unless the store has moved past gen, which
// means a sign-out or invalidation is clearing it.
func (s *Store) persist(ctx context.Context, gen uint64, token string, profile *types.UserProfile) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	live := s.generation == gen && s.state == types.SessionAuthenticated && s.token == token
	s.mu.RUnlock()
	if !live {
		return
	}

	minimal := profile.Minimal()
	err := s.persister.Save(ctx, &types.PersistedSession{
		SessionID:    s.id,
		SessionToken: token,
		Profile:      &minimal,
	})
	if err != nil {
		s.logger.WithError(err).WithField("session_id", s.id).Error("failed to persist session")
	}
}

func (s *Store) clearPersisted(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.persister.Clear(ctx, s.id); err != nil {
		s.logger.WithError(err).WithField("session_id", s.id).Error("failed to clear persisted session")
	}
}

func (s *Store) record(ctx context.Context, email string, kind types.SessionEventKind, detail string) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordSessionEvent(ctx, s.id, email, kind, detail); err != nil {
		s.logger.WithError(err).WithField("session_id", s.id).Warn("failed to record session event")
	}
}
