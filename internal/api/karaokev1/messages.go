// Package karaokev1 defines the karaoke.v1 RPC messages and the Connect
// handler and client constructors for SessionService and AdminService.
//
// Messages are plain structs carried by a JSON codec.
package karaokev1

import (
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

type CreateSessionRequest struct{}

type CreateSessionResponse struct {
	Session *karaoke.Session `json:"session"`
}

type GetSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type GetSessionResponse struct {
	Session *karaoke.Session `json:"session"`
}

type GetSnapshotRequest struct {
	SessionID string `json:"sessionId"`
}

// GetSnapshotResponse is loaded by a client before it subscribes to the session.
type GetSnapshotResponse struct {
	Session *karaoke.Session    `json:"session"`
	Queue   []karaoke.QueueItem `json:"queue"`
}

// ResolveVideoRequest asks the server to look up a video and build a queue item.
// Input is a video ID or a YouTube URL.
type ResolveVideoRequest struct {
	SessionID string `json:"sessionId"`
	Input     string `json:"input"`
	AddedBy   string `json:"addedBy,omitempty"`
}

type ResolveVideoResponse struct {
	Accepted bool               `json:"accepted"`
	Code     string             `json:"code,omitempty"`
	Message  string             `json:"message,omitempty"`
	Item     *karaoke.QueueItem `json:"item,omitempty"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
	Broadcasts  uint64 `json:"broadcasts"`
	Delivered   uint64 `json:"delivered"`
	Evicted     uint64 `json:"evicted"`
}

// ListConnectionsRequest filters by session when SessionID is set.
type ListConnectionsRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

type ListConnectionsResponse struct {
	Connections []karaoke.Connection `json:"connections"`
}

type EvictConnectionRequest struct {
	ConnectionID string `json:"connectionId"`
}

type EvictConnectionResponse struct{}

type EndSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type EndSessionResponse struct{}
