package connect

import (
	"context"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
	"github.com/osa030/karaoke-hub/internal/app/session"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
	"github.com/osa030/karaoke-hub/internal/infra/config"
)

// SessionService implements the SessionService RPC.
type SessionService struct {
	session *session.Manager
	config  *config.Config
}

// NewSessionService creates a new SessionService.
func NewSessionService(session *session.Manager, cfg *config.Config) *SessionService {
	return &SessionService{
		session: session,
		config:  cfg,
	}
}

var _ karaokev1.SessionServiceHandler = (*SessionService)(nil)

// CreateSession starts a new session.
func (s *SessionService) CreateSession(
	ctx context.Context,
	_ *connect.Request[karaokev1.CreateSessionRequest],
) (*connect.Response[karaokev1.CreateSessionResponse], error) {
	sess, err := s.session.CreateSession(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&karaokev1.CreateSessionResponse{Session: sess}), nil
}

// GetSession returns a session.
func (s *SessionService) GetSession(
	ctx context.Context,
	req *connect.Request[karaokev1.GetSessionRequest],
) (*connect.Response[karaokev1.GetSessionResponse], error) {
	if err := requireField("sessionId", req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	sess, err := s.session.GetSession(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&karaokev1.GetSessionResponse{Session: sess}), nil
}

// GetSnapshot returns the session with its queue.
func (s *SessionService) GetSnapshot(
	ctx context.Context,
	req *connect.Request[karaokev1.GetSnapshotRequest],
) (*connect.Response[karaokev1.GetSnapshotResponse], error) {
	if err := requireField("sessionId", req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	snap, err := s.session.GetSnapshot(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	queue := snap.Queue
	if queue == nil {
		queue = []karaoke.QueueItem{}
	}
	return connect.NewResponse(&karaokev1.GetSnapshotResponse{Session: snap.Session, Queue: queue}), nil
}

// ResolveVideo looks up a video and returns a queue item for ADD_TO_QUEUE.
// Rejections are reported in the response, not as errors.
func (s *SessionService) ResolveVideo(
	ctx context.Context,
	req *connect.Request[karaokev1.ResolveVideoRequest],
) (*connect.Response[karaokev1.ResolveVideoResponse], error) {
	if err := requireField("sessionId", req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	if err := requireField("input", req.Msg.Input); err != nil {
		return nil, toConnectError(err)
	}

	addedBy := req.Msg.AddedBy
	if addedBy == "" {
		addedBy = karaoke.DefaultAddedBy
	}

	item, code, err := s.session.ResolveVideo(ctx, req.Msg.SessionID, req.Msg.Input, addedBy)
	if err != nil {
		zlog.Error().Msgf("resolve video failed: session_id=%s input=%s error=%v", req.Msg.SessionID, req.Msg.Input, err)
		return nil, toConnectError(err)
	}
	if code != "" {
		return connect.NewResponse(&karaokev1.ResolveVideoResponse{
			Accepted: false,
			Code:     code,
			Message:  s.config.GetMessage(code),
		}), nil
	}
	return connect.NewResponse(&karaokev1.ResolveVideoResponse{
		Accepted: true,
		Message:  s.config.GetMessage("success"),
		Item:     item,
	}), nil
}
