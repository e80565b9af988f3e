package ws

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/domain/event"
)

// ConnectionIDHeader carries the server-assigned connection ID in the upgrade response.
const ConnectionIDHeader = "X-Connection-Id"

// SessionHub is the part of the hub the WebSocket handler drives.
type SessionHub interface {
	Join(ctx context.Context, connID, sessionID string) (hub.Delivery, error)
	Leave(ctx context.Context, connID string) (hub.Delivery, error)
	Dispatch(ctx context.Context, connID string, frame []byte) (hub.Delivery, error)
}

// Handler upgrades HTTP requests to session connections.
type Handler struct {
	transport *Transport
	hub       SessionHub
	upgrader  websocket.Upgrader
}

// NewHandler creates a handler. An empty allowedOrigins accepts any origin.
func NewHandler(t *Transport, h SessionHub, allowedOrigins []string) *Handler {
	return &Handler{
		transport: t,
		hub:       h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Register mounts the handler at GET /ws.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/ws", h.Serve)
}

// Serve handles GET /ws?sessionId=...
func (h *Handler) Serve(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
		return
	}

	connID := uuid.NewString()
	header := http.Header{}
	header.Set(ConnectionIDHeader, connID)
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		zlog.Warn().Msgf("websocket upgrade failed: session_id=%s error=%v", sessionID, err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	cn := h.transport.add(connID, ws)
	go h.transport.writePump(cn)

	if _, err := h.hub.Join(ctx, connID, sessionID); err != nil {
		zlog.Info().Msgf("join refused: connection_id=%s session_id=%s error=%v", connID, sessionID, err)
		_ = cn.trySend(event.EncodeError(hub.ErrorCode(err), err.Error()))
		h.transport.Close(connID)
		return
	}

	h.readPump(ctx, cn)
}

func (h *Handler) readPump(ctx context.Context, c *conn) {
	defer func() {
		leaveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := h.hub.Leave(leaveCtx, c.id); err != nil {
			zlog.Warn().Msgf("leave failed: connection_id=%s error=%v", c.id, err)
		}
		h.transport.Close(c.id)
		zlog.Info().Msgf("connection closed: connection_id=%s", c.id)
	}()

	opts := h.transport.opts
	c.ws.SetReadLimit(opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.pongWait()))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				zlog.Warn().Msgf("websocket read failed: connection_id=%s error=%v", c.id, err)
			}
			return
		}
		// Rejections are answered with an ERROR frame inside Dispatch.
		if _, err := h.hub.Dispatch(ctx, c.id, frame); err != nil && !isClientError(err) {
			zlog.Error().Msgf("dispatch failed: connection_id=%s error=%v", c.id, err)
		}
	}
}

func isClientError(err error) bool {
	return hub.ErrorCode(err) != event.CodeStoreError || errors.Is(err, context.Canceled)
}
