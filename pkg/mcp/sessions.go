package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry maps game IDs to the MCP sessions watching them.
// Populated when a client calls wireflow.watch.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string][]string // gameID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string][]string)}
}

// Watch subscribes a session to a game. Watching twice is a no-op.
func (r *SessionRegistry) Watch(gameID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.watchers[gameID], sessionID) {
		r.watchers[gameID] = append(r.watchers[gameID], sessionID)
	}
}

// Watchers returns the sessions watching gameID.
func (r *SessionRegistry) Watchers(gameID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.watchers[gameID])
}

// Remove drops a session from every game.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for gameID, sessions := range r.watchers {
		sessions = slices.DeleteFunc(sessions, func(s string) bool { return s == sessionID })
		if len(sessions) == 0 {
			delete(r.watchers, gameID)
			continue
		}
		r.watchers[gameID] = sessions
	}
}
