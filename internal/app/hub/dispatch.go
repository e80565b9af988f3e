package hub

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// Dispatch handles one inbound frame from connID. The target session is the one
// connID is registered to; nothing in the frame can select another session.
//
// On error nothing is mutated or broadcast, and an ERROR frame is sent back to
// connID only.
func (h *Hub) Dispatch(ctx context.Context, connID string, frame []byte) (Delivery, error) {
	d, err := h.dispatch(ctx, connID, frame)
	if err != nil {
		h.Reject(connID, err)
	}
	return d, err
}

func (h *Hub) dispatch(ctx context.Context, connID string, frame []byte) (Delivery, error) {
	sessionID, ok := h.registry.SessionOf(connID)
	if !ok {
		return Delivery{}, errors.Wrapf(ErrConnectionNotFound, "dispatch from %s", connID)
	}

	ev, err := event.Decode(frame)
	if err != nil {
		return Delivery{}, err
	}

	ev, err = h.apply(ctx, sessionID, connID, ev)
	if err != nil {
		return Delivery{}, err
	}
	return h.Broadcast(ctx, sessionID, ev)
}

// apply performs the store mutation for ev and returns the event to broadcast.
func (h *Hub) apply(ctx context.Context, sessionID, connID string, ev event.Event) (event.Event, error) {
	switch e := ev.(type) {
	case event.AddToQueue:
		sess, err := h.activeSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.IsCurrent(e.Item.ID) {
			return nil, errors.Wrapf(ErrItemIsCurrent, "add %s", e.Item.ID)
		}
		if e.Item.AddedAt.IsZero() {
			e.Item.AddedAt = time.Now().UTC()
		}
		if err := h.store.AppendQueueItem(ctx, sessionID, e.Item); err != nil {
			return nil, errors.Wrap(err, "failed to append queue item")
		}
		return e, nil

	case event.RemoveFromQueue:
		if _, err := h.activeSession(ctx, sessionID); err != nil {
			return nil, err
		}
		if err := h.store.RemoveQueueItem(ctx, sessionID, e.ItemID); err != nil {
			return nil, errors.Wrap(err, "failed to remove queue item")
		}
		return e, nil

	case event.UpdateCurrentSong:
		if _, err := h.activeSession(ctx, sessionID); err != nil {
			return nil, err
		}
		// Two separate store calls. A reader between them can see the song both
		// current and queued.
		if err := h.store.SetCurrentSong(ctx, sessionID, e.Item); err != nil {
			return nil, errors.Wrap(err, "failed to set current song")
		}
		if e.Item != nil {
			if err := h.store.RemoveQueueItem(ctx, sessionID, e.Item.ID); err != nil {
				return nil, errors.Wrap(err, "failed to remove current song from queue")
			}
		}
		return e, nil

	case event.JoinSession:
		return event.JoinSession{ConnectionID: connID}, nil

	case event.LeaveSession:
		return event.LeaveSession{ConnectionID: connID}, nil

	default:
		return nil, errors.Wrapf(event.ErrInvalidAction, "unhandled event %T", ev)
	}
}

func (h *Hub) activeSession(ctx context.Context, sessionID string) (*karaoke.Session, error) {
	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "session %s", sessionID)
	}
	if !sess.Active {
		return nil, errors.Wrapf(store.ErrSessionInactive, "session %s", sessionID)
	}
	return sess, nil
}

// Reject sends an ERROR frame describing err to connID only.
func (h *Hub) Reject(connID string, err error) {
	code := ErrorCode(err)
	if sendErr := h.send(connID, event.EncodeError(code, err.Error())); sendErr != nil {
		zlog.Debug().Msgf("failed to send error reply: connection_id=%s error=%v", connID, sendErr)
	}
	zlog.Info().Msgf("rejected frame: connection_id=%s code=%s error=%v", connID, code, err)
}

// ErrorCode maps an error to the code sent in an ERROR frame.
func ErrorCode(err error) event.ErrorCode {
	switch {
	case errors.Is(err, event.ErrInvalidAction):
		return event.CodeInvalidAction
	case errors.Is(err, event.ErrMalformedPayload):
		return event.CodeMalformedPayload
	case errors.Is(err, ErrConnectionNotFound):
		return event.CodeNotJoined
	case errors.Is(err, store.ErrSessionNotFound):
		return event.CodeSessionNotFound
	case errors.Is(err, store.ErrSessionInactive):
		return event.CodeSessionInactive
	case errors.Is(err, ErrItemIsCurrent):
		return event.CodeItemIsCurrent
	default:
		return event.CodeStoreError
	}
}
