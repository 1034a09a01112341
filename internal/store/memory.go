package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (m *MemoryStore) FindByID(_ context.Context, userID string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.creds[userID].Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds[cred.UserID] = cred.Clone()

	return nil
}

func (m *MemoryStore) RemoveByID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.creds, userID)

	return nil
}
