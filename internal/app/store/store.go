// Package store defines the durable session state the hub reads and mutates.
package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

var (
	// ErrSessionNotFound is returned when the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when joining a session the host has ended.
	ErrSessionInactive = errors.New("session is not active")
)

// Store is the durable session state. Every call is atomic on its own; there are
// no transactions spanning calls.
type Store interface {
	// CreateSession creates a new active session with a fresh ID.
	CreateSession(ctx context.Context) (*karaoke.Session, error)
	// GetSession returns ErrSessionNotFound if the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*karaoke.Session, error)
	// SetCurrentSong replaces the current song. A nil item clears it.
	SetCurrentSong(ctx context.Context, sessionID string, item *karaoke.QueueItem) error
	// EndSession marks the session inactive.
	EndSession(ctx context.Context, sessionID string) error

	// ListQueue returns the queue ordered by AddedAt. The order of items with equal
	// AddedAt is backend-defined but stable.
	ListQueue(ctx context.Context, sessionID string) ([]karaoke.QueueItem, error)
	// AppendQueueItem adds an item. An item with an existing ID overwrites it.
	AppendQueueItem(ctx context.Context, sessionID string, item karaoke.QueueItem) error
	// RemoveQueueItem deletes an item. Removing an absent item is not an error.
	RemoveQueueItem(ctx context.Context, sessionID, itemID string) error

	// PutConnection records a live connection.
	PutConnection(ctx context.Context, conn karaoke.Connection) error
	// DeleteConnection removes a connection record. Absent records are ignored.
	DeleteConnection(ctx context.Context, connID string) error
	// ListConnections returns the recorded connections of a session.
	ListConnections(ctx context.Context, sessionID string) ([]karaoke.Connection, error)
	// PurgeConnections removes every connection record. Called at startup, when no
	// connection from a previous process can still be alive.
	PurgeConnections(ctx context.Context) error

	Close() error
}
