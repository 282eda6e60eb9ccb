// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Manager owns the set of live session Stores for one daemon process,
// following a Create/Get/Delete/List lifecycle. SecretsBroker wiring is
// intentionally dropped, since credential/OAuth brokering is an
// out-of-scope collaborator.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Store
	baseDir  string
}

// NewManager creates an empty Manager rooted at baseDir (each session's
// event log and working directory live under baseDir/<id>).
func NewManager(baseDir string) *Manager {
	return &Manager{sessions: make(map[string]*Store), baseDir: baseDir}
}

// Create allocates a new session ID, builds its Store, and registers it.
func (m *Manager) Create(cfg Config) (*Store, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.LogDir == "" {
		cfg.LogDir = fmt.Sprintf("%s/%s", m.baseDir, cfg.ID)
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, err
		}
	}

	store, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[cfg.ID]; exists {
		return nil, fmt.Errorf("session: id %q already exists", cfg.ID)
	}
	m.sessions[cfg.ID] = store
	return store, nil
}

// Get returns the session by ID, or false if unknown.
func (m *Manager) Get(id string) (*Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session from the registry and closes its resources.
// The caller is responsible for having already stopped its Loop.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	store, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if store.Log != nil {
		store.Log.Close()
	}
	if store.Screen != nil {
		store.Screen.Close()
	}
}

// List returns every registered session ID.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every registered session's resources.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, store := range m.sessions {
		if store.Log != nil {
			store.Log.Close()
		}
		if store.Screen != nil {
			store.Screen.Close()
		}
		delete(m.sessions, id)
	}
}
