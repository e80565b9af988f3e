// Package event defines the session events exchanged between clients and the hub.
//
// Every frame on the wire is an envelope {"action": ..., "payload": ...}. The action
// selects one Event variant; Decode is the only place a raw frame becomes an Event.
package event

import "github.com/osa030/karaoke-hub/internal/domain/karaoke"

// Action identifies an event variant on the wire.
type Action string

const (
	ActionAddToQueue        Action = "ADD_TO_QUEUE"
	ActionRemoveFromQueue   Action = "REMOVE_FROM_QUEUE"
	ActionUpdateCurrentSong Action = "UPDATE_CURRENT_SONG"
	ActionJoinSession       Action = "JOIN_SESSION"
	ActionLeaveSession      Action = "LEAVE_SESSION"

	// ActionError is sent by the server to a single connection. It is never accepted
	// inbound and never broadcast.
	ActionError Action = "ERROR"
)

// String returns the wire name of the action.
func (a Action) String() string {
	return string(a)
}

// Valid reports whether a is a broadcastable action.
func (a Action) Valid() bool {
	switch a {
	case ActionAddToQueue, ActionRemoveFromQueue, ActionUpdateCurrentSong,
		ActionJoinSession, ActionLeaveSession:
		return true
	default:
		return false
	}
}

// Event is a decoded session event. The set of implementations is closed.
type Event interface {
	Action() Action
	isEvent()
}

// AddToQueue appends an item to the session queue.
type AddToQueue struct {
	Item karaoke.QueueItem
}

// RemoveFromQueue removes an item from the queue by ID.
type RemoveFromQueue struct {
	ItemID string
}

// UpdateCurrentSong sets the song now playing and removes it from the queue.
// A nil Item clears the current song.
type UpdateCurrentSong struct {
	Item *karaoke.QueueItem
}

// JoinSession announces that a connection joined the session.
type JoinSession struct {
	ConnectionID string
}

// LeaveSession announces that a connection left the session.
type LeaveSession struct {
	ConnectionID string
}

func (AddToQueue) Action() Action        { return ActionAddToQueue }
func (RemoveFromQueue) Action() Action   { return ActionRemoveFromQueue }
func (UpdateCurrentSong) Action() Action { return ActionUpdateCurrentSong }
func (JoinSession) Action() Action       { return ActionJoinSession }
func (LeaveSession) Action() Action      { return ActionLeaveSession }

func (AddToQueue) isEvent()        {}
func (RemoveFromQueue) isEvent()   {}
func (UpdateCurrentSong) isEvent() {}
func (JoinSession) isEvent()       {}
func (LeaveSession) isEvent()      {}

// ErrorCode classifies an error reply sent to a single connection.
type ErrorCode string

const (
	CodeInvalidAction    ErrorCode = "invalid_action"
	CodeMalformedPayload ErrorCode = "malformed_payload"
	CodeNotJoined        ErrorCode = "not_joined"
	CodeSessionNotFound  ErrorCode = "session_not_found"
	CodeSessionInactive  ErrorCode = "session_inactive"
	CodeItemIsCurrent    ErrorCode = "item_is_current"
	CodeStoreError       ErrorCode = "store_error"
)

// ErrorReply is the payload of an ERROR frame.
type ErrorReply struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}
