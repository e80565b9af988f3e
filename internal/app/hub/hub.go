// Package hub fans session events out to every connection of a session.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/app/session/registry"
	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// DefaultSendTimeout bounds a single delivery before it counts as failed.
const DefaultSendTimeout = 500 * time.Millisecond

var (
	// ErrConnectionNotFound is returned when a frame arrives from a connection that
	// is not registered to any session.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrItemIsCurrent is returned when adding an item whose ID is the current song.
	ErrItemIsCurrent = errors.New("item is the current song")
)

// Sender delivers frames to live connections. Send must not block for long; a
// returned error means the frame was not delivered.
type Sender interface {
	Send(connID string, frame []byte) error
	Close(connID string)
}

// Mirror receives a copy of every broadcast frame.
type Mirror interface {
	Publish(sessionID string, frame []byte) error
}

// Delivery reports the outcome of one broadcast.
type Delivery struct {
	Attempted int      // Members at broadcast time
	Delivered int      // Successful sends
	Evicted   []string // Connections removed after a failed send
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Connections int
	Sessions    int
	Broadcasts  uint64
	Delivered   uint64
	Evicted     uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithMirror sets a mirror that receives every broadcast frame.
func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// Hub routes events from a connection to every member of its session.
// It is safe for concurrent use; there is no per-session lock.
type Hub struct {
	registry    *registry.ConnectionRegistry
	store       store.Store
	sender      Sender
	mirror      Mirror
	sendTimeout time.Duration

	broadcasts atomic.Uint64
	delivered  atomic.Uint64
	evicted    atomic.Uint64
}

// New creates a hub.
func New(reg *registry.ConnectionRegistry, st store.Store, sender Sender, opts ...Option) *Hub {
	h := &Hub{
		registry:    reg,
		store:       st,
		sender:      sender,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join registers connID to sessionID and announces it to the session.
// The session must exist and be active.
func (h *Hub) Join(ctx context.Context, connID, sessionID string) (Delivery, error) {
	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return Delivery{}, errors.Wrapf(err, "join session %s", sessionID)
	}
	if !sess.Active {
		return Delivery{}, errors.Wrapf(store.ErrSessionInactive, "join session %s", sessionID)
	}

	previous, moved := h.registry.SessionOf(connID)
	if err := h.registry.Register(connID, sessionID); err != nil {
		if !errors.Is(err, registry.ErrDuplicateConnection) {
			return Delivery{}, err
		}
		zlog.Warn().Msgf("%v", err)
	}

	conn := karaoke.Connection{ConnectionID: connID, SessionID: sessionID, JoinedAt: time.Now().UTC()}
	if err := h.store.PutConnection(ctx, conn); err != nil {
		// The stored record still names the previous session.
		if moved && previous != sessionID {
			_ = h.registry.Register(connID, previous)
		} else if !moved {
			h.registry.Unregister(connID)
		}
		return Delivery{}, errors.Wrap(err, "failed to record connection")
	}

	zlog.Info().Msgf("connection joined: connection_id=%s session_id=%s", connID, sessionID)
	return h.Broadcast(ctx, sessionID, event.JoinSession{ConnectionID: connID})
}

// Leave unregisters connID and announces it to the remaining members.
// Leaving an unknown connection is a no-op.
func (h *Hub) Leave(ctx context.Context, connID string) (Delivery, error) {
	sessionID, ok := h.registry.Unregister(connID)
	if !ok {
		return Delivery{}, nil
	}
	if err := h.store.DeleteConnection(ctx, connID); err != nil {
		zlog.Warn().Msgf("failed to delete connection record: connection_id=%s error=%v", connID, err)
	}

	zlog.Info().Msgf("connection left: connection_id=%s session_id=%s", connID, sessionID)
	return h.Broadcast(ctx, sessionID, event.LeaveSession{ConnectionID: connID})
}

// Broadcast sends ev to every member of sessionID, the originating connection
// included. Sends run in parallel; each failed send evicts that connection and
// the broadcast continues. There are no retries.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, ev event.Event) (Delivery, error) {
	frame, err := event.Encode(ev)
	if err != nil {
		return Delivery{}, err
	}

	members := h.registry.MembersOf(sessionID)
	h.broadcasts.Add(1)

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
		mu        sync.Mutex
		failed    []string
	)
	for _, connID := range members {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			if err := h.send(connID, frame); err != nil {
				zlog.Debug().Msgf("delivery failed: connection_id=%s error=%v", connID, err)
				mu.Lock()
				failed = append(failed, connID)
				mu.Unlock()
				return
			}
			delivered.Add(1)
		}(connID)
	}
	wg.Wait()

	for _, connID := range failed {
		h.evict(ctx, connID)
	}

	if h.mirror != nil {
		if err := h.mirror.Publish(sessionID, frame); err != nil {
			zlog.Warn().Msgf("failed to mirror event: session_id=%s action=%s error=%v", sessionID, ev.Action(), err)
		}
	}

	d := Delivery{Attempted: len(members), Delivered: int(delivered.Load()), Evicted: failed}
	h.delivered.Add(uint64(d.Delivered))
	zlog.Debug().Msgf("broadcast: session_id=%s action=%s delivered=%d/%d", sessionID, ev.Action(), d.Delivered, d.Attempted)
	return d, nil
}

// send runs Sender.Send with a timeout so one stuck connection cannot stall the fan-out.
func (h *Hub) send(connID string, frame []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- h.sender.Send(connID, frame)
	}()

	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.Newf("send timed out after %s", h.sendTimeout)
	}
}

// evict drops a connection whose delivery failed. No LEAVE_SESSION is broadcast.
func (h *Hub) evict(ctx context.Context, connID string) {
	sessionID, ok := h.registry.Unregister(connID)
	if err := h.store.DeleteConnection(ctx, connID); err != nil {
		zlog.Warn().Msgf("failed to delete connection record: connection_id=%s error=%v", connID, err)
	}
	h.sender.Close(connID)
	if ok {
		h.evicted.Add(1)
		zlog.Info().Msgf("connection evicted: connection_id=%s session_id=%s", connID, sessionID)
	}
}

// Evict removes a connection on request, as if its delivery had failed.
func (h *Hub) Evict(ctx context.Context, connID string) error {
	if _, ok := h.registry.SessionOf(connID); !ok {
		return errors.Wrapf(ErrConnectionNotFound, "evict %s", connID)
	}
	h.evict(ctx, connID)
	return nil
}

// Connections returns every registered connection.
func (h *Hub) Connections() []karaoke.Connection {
	return h.registry.All()
}

// Members returns the connections registered to sessionID.
func (h *Hub) Members(sessionID string) []string {
	return h.registry.MembersOf(sessionID)
}

// Stats returns counters for monitoring.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Count(),
		Sessions:    h.registry.SessionCount(),
		Broadcasts:  h.broadcasts.Load(),
		Delivered:   h.delivered.Load(),
		Evicted:     h.evicted.Load(),
	}
}

// Close closes every registered connection. The registry is left as is; each
// transport calls Leave when its connection ends.
func (h *Hub) Close() {
	for _, c := range h.registry.All() {
		h.sender.Close(c.ConnectionID)
	}
}
