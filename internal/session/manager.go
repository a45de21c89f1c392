package session

import (
	"context"
	"sync"
	"time"

	"pulsepoint/internal/metrics"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

// IdentityProvider is what the manager needs from the identity adapter.
type IdentityProvider interface {
	OnIdentityChanged(fn func(types.IdentityChange)) (unsubscribe func())
	Restore(ctx context.Context, sessionID string, cred types.Credential)
	// Forget drops whatever the provider holds for an evicted session.
	Forget(sessionID string)
}

type ManagerOptions struct {
	Persister Persister
	Events    EventRecorder
	Exchanger *Exchanger
	Identity  IdentityProvider
	Logger    *logrus.Logger

	// IdleTimeout evicts stores nobody has touched for this long. Zero
	// keeps them forever.
	IdleTimeout time.Duration
	// RestoreTimeout bounds the startup replay of a browser's credential.
	RestoreTimeout time.Duration
}

type entry struct {
	store    *Store
	lastSeen time.Time
}

// Manager owns the store of every browser session the portal has seen.
type Manager struct {
	persister Persister
	events    EventRecorder
	exchanger *Exchanger
	identity  IdentityProvider
	logger    *logrus.Logger

	idle           time.Duration
	restoreTimeout time.Duration
	now            func() time.Time

	mu          sync.Mutex
	stores      map[string]*entry
	unsubscribe func()
	restores    sync.WaitGroup
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = 15 * time.Second
	}
	if opts.Persister == nil {
		opts.Persister = NewMemoryPersister("")
	}

	m := &Manager{
		persister:      opts.Persister,
		events:         opts.Events,
		exchanger:      opts.Exchanger,
		identity:       opts.Identity,
		logger:         opts.Logger,
		idle:           opts.IdleTimeout,
		restoreTimeout: opts.RestoreTimeout,
		now:            time.Now,
		stores:         make(map[string]*entry),
	}

	if m.identity != nil {
		m.unsubscribe = m.identity.OnIdentityChanged(m.handleChange)
	}

	return m
}

// Attach returns the store for sessionID, creating it on first sight.
//
// A new store starts anonymous unless there is something to revalidate: a
// persisted token or a provider credential. In that case it starts unknown,
// keeps the persisted profile as stale, and the identity provider is asked
// to replay the credential, which lands through the exchanger.
func (m *Manager) Attach(ctx context.Context, sessionID string, cred types.Credential) *Store {
	if store, ok := m.touch(sessionID); ok {
		return store
	}

	persisted, err := m.persister.Load(ctx, sessionID)
	if err != nil {
		m.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to load persisted session")
		persisted = nil
	}
	revalidate := !persisted.Empty() || !cred.Empty()

	m.mu.Lock()
	if e, ok := m.stores[sessionID]; ok {
		e.lastSeen = m.now()
		m.mu.Unlock()
		return e.store
	}

	store := newStore(sessionID, m.persister, m.events, m.logger)
	if revalidate {
		store.startUnknown(persisted)
	}
	m.stores[sessionID] = &entry{store: store, lastSeen: m.now()}
	metrics.LiveSessions.Set(float64(len(m.stores)))
	m.mu.Unlock()

	if !revalidate {
		return store
	}

	if m.identity == nil {
		m.exchanger.Start(store, nil)
		return store
	}

	m.restores.Add(1)
	go func() {
		defer m.restores.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.restoreTimeout)
		defer cancel()
		m.identity.Restore(rctx, sessionID, cred)
	}()

	return store
}

func (m *Manager) touch(sessionID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.stores[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.store, true
}

// Lookup returns the store for sessionID if it is held in memory.
func (m *Manager) Lookup(sessionID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.stores[sessionID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// handleChange routes an identity notification to the exchanger. A
// notification for a session that is no longer held recreates its store.
func (m *Manager) handleChange(change types.IdentityChange) {
	m.mu.Lock()
	e, ok := m.stores[change.SessionID]
	if !ok {
		e = &entry{store: newStore(change.SessionID, m.persister, m.events, m.logger)}
		m.stores[change.SessionID] = e
		metrics.LiveSessions.Set(float64(len(m.stores)))
	}
	e.lastSeen = m.now()
	m.mu.Unlock()

	m.exchanger.Start(e.store, change.Identity)
}

// Evict drops idle stores. Stores still waiting on an exchange are kept.
func (m *Manager) Evict() int {
	if m.idle <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var evicted []string
	for id, e := range m.stores {
		if e.lastSeen.After(cutoff) {
			continue
		}
		if e.store.Snapshot().State == types.SessionUnknown {
			continue
		}
		delete(m.stores, id)
		evicted = append(evicted, id)
	}
	if len(evicted) > 0 {
		metrics.LiveSessions.Set(float64(len(m.stores)))
	}
	m.mu.Unlock()

	if m.identity != nil {
		for _, id := range evicted {
			m.identity.Forget(id)
		}
	}

	return len(evicted)
}

// Run evicts idle stores until ctx ends, then waits for running exchanges.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.idle / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			if n := m.Evict(); n > 0 {
				m.logger.WithField("evicted", n).Debug("evicted idle sessions")
			}
		}
	}
}

// Close stops listening for identity changes and waits for in-flight work.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	m.restores.Wait()
	if m.exchanger != nil {
		m.exchanger.Wait()
	}
}
