package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pulsepoint/pkg/types"
)

// TokenKey and ProfileKey name the two records a session is persisted as.
func TokenKey(prefix, sessionID string) string {
	return prefix + sessionID + ":token"
}

func ProfileKey(prefix, sessionID string) string {
	return prefix + sessionID + ":profile"
}

// MemoryPersister keeps sessions in process memory. Used in development and
// tests; nothing survives a restart.
type MemoryPersister struct {
	prefix string

	mu      sync.Mutex
	records map[string][]byte
	updated map[string]time.Time
}

func NewMemoryPersister(prefix string) *MemoryPersister {
	return &MemoryPersister{
		prefix:  prefix,
		records: make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

func (m *MemoryPersister) Load(_ context.Context, sessionID string) (*types.PersistedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.records[TokenKey(m.prefix, sessionID)]
	if !ok {
		return nil, nil
	}

	sess := &types.PersistedSession{
		SessionID:    sessionID,
		SessionToken: string(token),
		UpdatedAt:    m.updated[sessionID],
	}

	if raw, ok := m.records[ProfileKey(m.prefix, sessionID)]; ok {
		var profile types.UserProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return nil, fmt.Errorf("decode persisted profile: %w", err)
		}
		sess.Profile = &profile
	}

	return sess, nil
}

func (m *MemoryPersister) Save(_ context.Context, sess *types.PersistedSession) error {
	if sess == nil || sess.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	var profile []byte
	if sess.Profile != nil {
		var err error
		profile, err = json.Marshal(sess.Profile)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[TokenKey(m.prefix, sess.SessionID)] = []byte(sess.SessionToken)
	if profile != nil {
		m.records[ProfileKey(m.prefix, sess.SessionID)] = profile
	} else {
		delete(m.records, ProfileKey(m.prefix, sess.SessionID))
	}
	m.updated[sess.SessionID] = time.Now().UTC()

	return nil
}

func (m *MemoryPersister) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, TokenKey(m.prefix, sessionID))
	delete(m.records, ProfileKey(m.prefix, sessionID))
	delete(m.updated, sessionID)
	return nil
}

// Keys lists the raw keys currently held.
func (m *MemoryPersister) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys
}
