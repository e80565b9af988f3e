package karaokev1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// AdminServiceName is the fully-qualified name of AdminService.
	AdminServiceName = "karaoke.v1.AdminService"

	AdminServiceGetStatusProcedure       = "/karaoke.v1.AdminService/GetStatus"
	AdminServiceListConnectionsProcedure = "/karaoke.v1.AdminService/ListConnections"
	AdminServiceEvictConnectionProcedure = "/karaoke.v1.AdminService/EvictConnection"
	AdminServiceEndSessionProcedure      = "/karaoke.v1.AdminService/EndSession"
)

// AdminServiceHandler is implemented by the server.
type AdminServiceHandler interface {
	GetStatus(context.Context, *connect.Request[GetStatusRequest]) (*connect.Response[GetStatusResponse], error)
	ListConnections(context.Context, *connect.Request[ListConnectionsRequest]) (*connect.Response[ListConnectionsResponse], error)
	EvictConnection(context.Context, *connect.Request[EvictConnectionRequest]) (*connect.Response[EvictConnectionResponse], error)
	EndSession(context.Context, *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error)
}

// NewAdminServiceHandler returns the mount path and handler for svc.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(AdminServiceGetStatusProcedure, connect.NewUnaryHandler(AdminServiceGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(AdminServiceListConnectionsProcedure, connect.NewUnaryHandler(AdminServiceListConnectionsProcedure, svc.ListConnections, opts...))
	mux.Handle(AdminServiceEvictConnectionProcedure, connect.NewUnaryHandler(AdminServiceEvictConnectionProcedure, svc.EvictConnection, opts...))
	mux.Handle(AdminServiceEndSessionProcedure, connect.NewUnaryHandler(AdminServiceEndSessionProcedure, svc.EndSession, opts...))
	return "/" + AdminServiceName + "/", mux
}

// AdminServiceClient calls AdminService.
type AdminServiceClient interface {
	GetStatus(context.Context, *connect.Request[GetStatusRequest]) (*connect.Response[GetStatusResponse], error)
	ListConnections(context.Context, *connect.Request[ListConnectionsRequest]) (*connect.Response[ListConnectionsResponse], error)
	EvictConnection(context.Context, *connect.Request[EvictConnectionRequest]) (*connect.Response[EvictConnectionResponse], error)
	EndSession(context.Context, *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error)
}

type adminServiceClient struct {
	getStatus       *connect.Client[GetStatusRequest, GetStatusResponse]
	listConnections *connect.Client[ListConnectionsRequest, ListConnectionsResponse]
	evictConnection *connect.Client[EvictConnectionRequest, EvictConnectionResponse]
	endSession      *connect.Client[EndSessionRequest, EndSessionResponse]
}

// NewAdminServiceClient creates a client for the server at baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &adminServiceClient{
		getStatus:       connect.NewClient[GetStatusRequest, GetStatusResponse](httpClient, baseURL+AdminServiceGetStatusProcedure, opts...),
		listConnections: connect.NewClient[ListConnectionsRequest, ListConnectionsResponse](httpClient, baseURL+AdminServiceListConnectionsProcedure, opts...),
		evictConnection: connect.NewClient[EvictConnectionRequest, EvictConnectionResponse](httpClient, baseURL+AdminServiceEvictConnectionProcedure, opts...),
		endSession:      connect.NewClient[EndSessionRequest, EndSessionResponse](httpClient, baseURL+AdminServiceEndSessionProcedure, opts...),
	}
}

func (c *adminServiceClient) GetStatus(ctx context.Context, req *connect.Request[GetStatusRequest]) (*connect.Response[GetStatusResponse], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *adminServiceClient) ListConnections(ctx context.Context, req *connect.Request[ListConnectionsRequest]) (*connect.Response[ListConnectionsResponse], error) {
	return c.listConnections.CallUnary(ctx, req)
}

func (c *adminServiceClient) EvictConnection(ctx context.Context, req *connect.Request[EvictConnectionRequest]) (*connect.Response[EvictConnectionResponse], error) {
	return c.evictConnection.CallUnary(ctx, req)
}

func (c *adminServiceClient) EndSession(ctx context.Context, req *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error) {
	return c.endSession.CallUnary(ctx, req)
}
