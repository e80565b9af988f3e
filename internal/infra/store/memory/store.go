// Package memory provides an in-process store.Store. State is lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// Store keeps sessions, queues and connection records in maps.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*karaoke.Session
	queues      map[string][]karaoke.QueueItem
	connections map[string]karaoke.Connection
}

var _ store.Store = (*Store)(nil)

// New creates an empty memory store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*karaoke.Session),
		queues:      make(map[string][]karaoke.QueueItem),
		connections: make(map[string]karaoke.Connection),
	}
}

func (s *Store) CreateSession(_ context.Context) (*karaoke.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := karaoke.NewSession(uuid.New().String())
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*karaoke.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) SetCurrentSong(_ context.Context, sessionID string, item *karaoke.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	if item == nil {
		sess.CurrentSong = nil
		return nil
	}
	song := *item
	sess.CurrentSong = &song
	return nil
}

func (s *Store) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	sess.Active = false
	return nil
}

func (s *Store) ListQueue(_ context.Context, sessionID string) ([]karaoke.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, store.ErrSessionNotFound
	}
	queue := make([]karaoke.QueueItem, len(s.queues[sessionID]))
	copy(queue, s.queues[sessionID])
	karaoke.SortQueue(queue)
	return queue, nil
}

func (s *Store) AppendQueueItem(_ context.Context, sessionID string, item karaoke.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrSessionNotFound
	}
	queue := s.queues[sessionID]
	if i := karaoke.IndexOf(queue, item.ID); i >= 0 {
		queue[i] = item
		return nil
	}
	s.queues[sessionID] = append(queue, item)
	return nil
}

func (s *Store) RemoveQueueItem(_ context.Context, sessionID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrSessionNotFound
	}
	queue := s.queues[sessionID]
	if i := karaoke.IndexOf(queue, itemID); i >= 0 {
		s.queues[sessionID] = append(queue[:i:i], queue[i+1:]...)
	}
	return nil
}

func (s *Store) PutConnection(_ context.Context, conn karaoke.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn.ConnectionID] = conn
	return nil
}

func (s *Store) DeleteConnection(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connID)
	return nil
}

func (s *Store) ListConnections(_ context.Context, sessionID string) ([]karaoke.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]karaoke.Connection, 0)
	for _, c := range s.connections {
		if c.SessionID == sessionID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) PurgeConnections(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections = make(map[string]karaoke.Connection)
	return nil
}

func (s *Store) Close() error {
	return nil
}
