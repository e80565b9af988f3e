// Package registry tracks which live connections belong to which session.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// ErrDuplicateConnection is returned by Register when the connection was already bound
// to a different session. The registration still succeeds; the error is a warning.
var ErrDuplicateConnection = errors.New("connection already registered to another session")

type entry struct {
	sessionID string
	joinedAt  time.Time
}

// ConnectionRegistry is a bidirectional index between connections and sessions.
// Both directions are mutated under a single lock so they never disagree.
type ConnectionRegistry struct {
	mu        sync.RWMutex
	bySession map[string]map[string]struct{}
	byConn    map[string]entry
}

// NewConnectionRegistry creates an empty connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		bySession: make(map[string]map[string]struct{}),
		byConn:    make(map[string]entry),
	}
}

// Register binds connID to sessionID. Registering the same pair twice is a no-op.
// If connID belongs to another session it is moved, never added to both, and
// ErrDuplicateConnection is returned.
func (r *ConnectionRegistry) Register(connID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var warn error
	if prev, ok := r.byConn[connID]; ok {
		if prev.sessionID == sessionID {
			return nil
		}
		r.removeLocked(connID, prev.sessionID)
		warn = errors.Wrapf(ErrDuplicateConnection, "connection %s moved from session %s to %s",
			connID, prev.sessionID, sessionID)
	}

	members, ok := r.bySession[sessionID]
	if !ok {
		members = make(map[string]struct{})
		r.bySession[sessionID] = members
	}
	members[connID] = struct{}{}
	r.byConn[connID] = entry{sessionID: sessionID, joinedAt: time.Now().UTC()}

	return warn
}

// Unregister removes connID and returns the session it belonged to.
// ok is false when the connection was not registered.
func (r *ConnectionRegistry) Unregister(connID string) (sessionID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	r.removeLocked(connID, e.sessionID)
	return e.sessionID, true
}

func (r *ConnectionRegistry) removeLocked(connID, sessionID string) {
	delete(r.byConn, connID)
	if members, ok := r.bySession[sessionID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.bySession, sessionID)
		}
	}
}

// MembersOf returns a snapshot of the connections registered to sessionID.
func (r *ConnectionRegistry) MembersOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.bySession[sessionID]
	result := make([]string, 0, len(members))
	for connID := range members {
		result = append(result, connID)
	}
	sort.Strings(result)
	return result
}

// SessionOf returns the session connID is registered to.
func (r *ConnectionRegistry) SessionOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[connID]
	return e.sessionID, ok
}

// All returns every registered connection.
func (r *ConnectionRegistry) All() []karaoke.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]karaoke.Connection, 0, len(r.byConn))
	for connID, e := range r.byConn {
		result = append(result, karaoke.Connection{
			ConnectionID: connID,
			SessionID:    e.sessionID,
			JoinedAt:     e.joinedAt,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectionID < result[j].ConnectionID
	})
	return result
}

// Count returns the number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// SessionCount returns the number of sessions with at least one connection.
func (r *ConnectionRegistry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
