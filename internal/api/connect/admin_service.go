package connect

import (
	"context"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/app/session"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// AdminService implements the AdminService RPC.
type AdminService struct {
	session *session.Manager
	hub     *hub.Hub
}

// NewAdminService creates a new AdminService.
func NewAdminService(session *session.Manager, h *hub.Hub) *AdminService {
	return &AdminService{
		session: session,
		hub:     h,
	}
}

var _ karaokev1.AdminServiceHandler = (*AdminService)(nil)

// GetStatus returns hub counters.
func (s *AdminService) GetStatus(
	_ context.Context,
	_ *connect.Request[karaokev1.GetStatusRequest],
) (*connect.Response[karaokev1.GetStatusResponse], error) {
	st := s.session.GetStatus().Hub
	return connect.NewResponse(&karaokev1.GetStatusResponse{
		Connections: st.Connections,
		Sessions:    st.Sessions,
		Broadcasts:  st.Broadcasts,
		Delivered:   st.Delivered,
		Evicted:     st.Evicted,
	}), nil
}

// ListConnections lists live connections, optionally for one session.
func (s *AdminService) ListConnections(
	_ context.Context,
	req *connect.Request[karaokev1.ListConnectionsRequest],
) (*connect.Response[karaokev1.ListConnectionsResponse], error) {
	conns := make([]karaoke.Connection, 0)
	for _, c := range s.hub.Connections() {
		if req.Msg.SessionID != "" && c.SessionID != req.Msg.SessionID {
			continue
		}
		conns = append(conns, c)
	}
	return connect.NewResponse(&karaokev1.ListConnectionsResponse{Connections: conns}), nil
}

// EvictConnection closes a connection without announcing it.
func (s *AdminService) EvictConnection(
	ctx context.Context,
	req *connect.Request[karaokev1.EvictConnectionRequest],
) (*connect.Response[karaokev1.EvictConnectionResponse], error) {
	if err := requireField("connectionId", req.Msg.ConnectionID); err != nil {
		return nil, toConnectError(err)
	}
	if err := s.hub.Evict(ctx, req.Msg.ConnectionID); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("admin evicted connection: connection_id=%s", req.Msg.ConnectionID)
	return connect.NewResponse(&karaokev1.EvictConnectionResponse{}), nil
}

// EndSession marks a session inactive.
func (s *AdminService) EndSession(
	ctx context.Context,
	req *connect.Request[karaokev1.EndSessionRequest],
) (*connect.Response[karaokev1.EndSessionResponse], error) {
	if err := requireField("sessionId", req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	if err := s.session.EndSession(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&karaokev1.EndSessionResponse{}), nil
}
