// Package session provides the session manager: the request/response side of a
// karaoke session. Real-time fan-out lives in the hub.
package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/app/filter"
	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
	"github.com/osa030/karaoke-hub/internal/infra/youtube"
)

// Result codes returned by ResolveVideo besides the filter codes.
const (
	CodeSessionNotFound = "session_not_found"
	CodeInvalidVideo    = "invalid_video"
	CodeVideoNotFound   = "video_not_found"
	CodeRateLimited     = "rate_limited"
)

// VideoResolver looks up video metadata.
type VideoResolver interface {
	GetVideo(ctx context.Context, input string) (*karaoke.Video, error)
}

// Snapshot is the state a client loads before subscribing to a session.
type Snapshot struct {
	Session *karaoke.Session
	Queue   []karaoke.QueueItem
}

// Status summarises server activity.
type Status struct {
	Hub hub.Stats
}

// Manager manages karaoke sessions.
type Manager struct {
	store       store.Store
	hub         *hub.Hub
	resolver    VideoResolver
	filterChain *filter.Chain
}

// NewManager creates a new session manager. A nil chain accepts every request.
func NewManager(st store.Store, h *hub.Hub, resolver VideoResolver, chain *filter.Chain) *Manager {
	if chain == nil {
		chain = filter.NewChain()
	}
	return &Manager{
		store:       st,
		hub:         h,
		resolver:    resolver,
		filterChain: chain,
	}
}

// CreateSession starts a new session.
func (m *Manager) CreateSession(ctx context.Context) (*karaoke.Session, error) {
	sess, err := m.store.CreateSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	zlog.Info().Msgf("session created: session_id=%s", sess.ID)
	return sess, nil
}

// GetSession returns a session. The error matches store.ErrSessionNotFound for unknown IDs.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*karaoke.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// GetSnapshot returns the session and its queue.
//
// The two reads are separate store calls, and a client subscribes only after
// loading the snapshot. Events broadcast in between are not replayed.
func (m *Manager) GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	queue, err := m.store.ListQueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: sess, Queue: queue}, nil
}

// EndSession marks the session inactive. Connected guests stay connected but
// further joins and queue changes are refused.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	if err := m.store.EndSession(ctx, sessionID); err != nil {
		return err
	}
	zlog.Info().Msgf("session ended: session_id=%s members=%d", sessionID, len(m.hub.Members(sessionID)))
	return nil
}

// ResolveVideo looks up input (a video ID or URL), runs the filter chain and
// returns a queue item ready to be sent as ADD_TO_QUEUE. It does not modify the
// queue. A rejected request returns a nil item and a non-empty code.
func (m *Manager) ResolveVideo(ctx context.Context, sessionID, input, addedBy string) (*karaoke.QueueItem, string, error) {
	snapshot, err := m.GetSnapshot(ctx, sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		zlog.Warn().Msgf("video request rejected: session_id=%s code=%s", sessionID, CodeSessionNotFound)
		return nil, CodeSessionNotFound, nil
	}
	if err != nil {
		return nil, "", err
	}

	video, err := m.resolver.GetVideo(ctx, input)
	if err != nil {
		code := resolverCode(err)
		if code == "" {
			return nil, "", errors.Wrap(err, "failed to look up video")
		}
		zlog.Warn().Msgf("video request rejected: session_id=%s input=%s code=%s", sessionID, input, code)
		return nil, code, nil
	}

	req := filter.Request{SessionID: sessionID, VideoID: video.ID, AddedBy: addedBy}
	result := m.filterChain.Execute(ctx, req, *video, filter.Snapshot{
		Active:      snapshot.Session.Active,
		CurrentSong: snapshot.Session.CurrentSong,
		Queue:       snapshot.Queue,
	})
	zlog.Info().Msgf("video request: session_id=%s video_id=%s title=%s result=%t code=%s",
		sessionID, video.ID, video.Title, result.Accepted, result.Code)
	if !result.Accepted {
		return nil, result.Code, nil
	}

	item := karaoke.NewQueueItem(*video, addedBy)
	return &item, "", nil
}

func resolverCode(err error) string {
	switch {
	case errors.Is(err, youtube.ErrInvalidVideoID):
		return CodeInvalidVideo
	case errors.Is(err, youtube.ErrVideoNotFound):
		return CodeVideoNotFound
	case errors.Is(err, youtube.ErrRateLimited):
		return CodeRateLimited
	default:
		return ""
	}
}

// GetStatus returns the current server status.
func (m *Manager) GetStatus() *Status {
	return &Status{Hub: m.hub.Stats()}
}
