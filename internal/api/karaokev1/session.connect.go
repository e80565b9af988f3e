package karaokev1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// SessionServiceName is the fully-qualified name of SessionService.
	SessionServiceName = "karaoke.v1.SessionService"

	SessionServiceCreateSessionProcedure = "/karaoke.v1.SessionService/CreateSession"
	SessionServiceGetSessionProcedure    = "/karaoke.v1.SessionService/GetSession"
	SessionServiceGetSnapshotProcedure   = "/karaoke.v1.SessionService/GetSnapshot"
	SessionServiceResolveVideoProcedure  = "/karaoke.v1.SessionService/ResolveVideo"
)

// SessionServiceHandler is implemented by the server.
type SessionServiceHandler interface {
	CreateSession(context.Context, *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	GetSnapshot(context.Context, *connect.Request[GetSnapshotRequest]) (*connect.Response[GetSnapshotResponse], error)
	ResolveVideo(context.Context, *connect.Request[ResolveVideoRequest]) (*connect.Response[ResolveVideoResponse], error)
}

// NewSessionServiceHandler returns the mount path and handler for svc.
func NewSessionServiceHandler(svc SessionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(SessionServiceCreateSessionProcedure, connect.NewUnaryHandler(SessionServiceCreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(SessionServiceGetSessionProcedure, connect.NewUnaryHandler(SessionServiceGetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(SessionServiceGetSnapshotProcedure, connect.NewUnaryHandler(SessionServiceGetSnapshotProcedure, svc.GetSnapshot, opts...))
	mux.Handle(SessionServiceResolveVideoProcedure, connect.NewUnaryHandler(SessionServiceResolveVideoProcedure, svc.ResolveVideo, opts...))
	return "/" + SessionServiceName + "/", mux
}

// SessionServiceClient calls SessionService.
type SessionServiceClient interface {
	CreateSession(context.Context, *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	GetSnapshot(context.Context, *connect.Request[GetSnapshotRequest]) (*connect.Response[GetSnapshotResponse], error)
	ResolveVideo(context.Context, *connect.Request[ResolveVideoRequest]) (*connect.Response[ResolveVideoResponse], error)
}

type sessionServiceClient struct {
	createSession *connect.Client[CreateSessionRequest, CreateSessionResponse]
	getSession    *connect.Client[GetSessionRequest, GetSessionResponse]
	getSnapshot   *connect.Client[GetSnapshotRequest, GetSnapshotResponse]
	resolveVideo  *connect.Client[ResolveVideoRequest, ResolveVideoResponse]
}

// NewSessionServiceClient creates a client for the server at baseURL.
func NewSessionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SessionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &sessionServiceClient{
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+SessionServiceCreateSessionProcedure, opts...),
		getSession:    connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+SessionServiceGetSessionProcedure, opts...),
		getSnapshot:   connect.NewClient[GetSnapshotRequest, GetSnapshotResponse](httpClient, baseURL+SessionServiceGetSnapshotProcedure, opts...),
		resolveVideo:  connect.NewClient[ResolveVideoRequest, ResolveVideoResponse](httpClient, baseURL+SessionServiceResolveVideoProcedure, opts...),
	}
}

func (c *sessionServiceClient) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	return c.createSession.CallUnary(ctx, req)
}

func (c *sessionServiceClient) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *sessionServiceClient) GetSnapshot(ctx context.Context, req *connect.Request[GetSnapshotRequest]) (*connect.Response[GetSnapshotResponse], error) {
	return c.getSnapshot.CallUnary(ctx, req)
}

func (c *sessionServiceClient) ResolveVideo(ctx context.Context, req *connect.Request[ResolveVideoRequest]) (*connect.Response[ResolveVideoResponse], error) {
	return c.resolveVideo.CallUnary(ctx, req)
}
