package event

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/encoding/json"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

var (
	// ErrInvalidAction is returned for frames whose action is not a known event.
	ErrInvalidAction = errors.New("invalid action")
	// ErrMalformedPayload is returned when the envelope or payload cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// rawPayload keeps the payload bytes for the second decoding pass.
type rawPayload []byte

func (r *rawPayload) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func (r rawPayload) isNull() bool {
	trimmed := bytes.TrimSpace(r)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type inbound struct {
	Action  Action     `json:"action"`
	Payload rawPayload `json:"payload"`
}

type outbound struct {
	Action  Action `json:"action"`
	Payload any    `json:"payload"`
}

type connectionPayload struct {
	ConnectionID string `json:"connectionId"`
}

type removePayload struct {
	ID string `json:"id"`
}

// Decode parses a wire frame into an Event.
func Decode(data []byte) (Event, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "decode envelope: %v", err)
	}

	switch in.Action {
	case ActionAddToQueue:
		item, err := decodeItem(in.Payload)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errors.Wrap(ErrMalformedPayload, "ADD_TO_QUEUE requires an item")
		}
		return AddToQueue{Item: *item}, nil

	case ActionRemoveFromQueue:
		id, err := decodeItemID(in.Payload)
		if err != nil {
			return nil, err
		}
		return RemoveFromQueue{ItemID: id}, nil

	case ActionUpdateCurrentSong:
		item, err := decodeItem(in.Payload)
		if err != nil {
			return nil, err
		}
		return UpdateCurrentSong{Item: item}, nil

	case ActionJoinSession, ActionLeaveSession:
		var p connectionPayload
		if !in.Payload.isNull() {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				return nil, errors.Wrapf(ErrMalformedPayload, "decode %s payload: %v", in.Action, err)
			}
		}
		if in.Action == ActionJoinSession {
			return JoinSession{ConnectionID: p.ConnectionID}, nil
		}
		return LeaveSession{ConnectionID: p.ConnectionID}, nil

	default:
		return nil, errors.Wrapf(ErrInvalidAction, "action %q", string(in.Action))
	}
}

// decodeItem returns nil for a null payload.
func decodeItem(p rawPayload) (*karaoke.QueueItem, error) {
	if p.isNull() {
		return nil, nil
	}
	var item karaoke.QueueItem
	if err := json.Unmarshal(p, &item); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "decode queue item: %v", err)
	}
	if item.ID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "queue item has no id")
	}
	return &item, nil
}

// decodeItemID accepts a bare string ID or an object with an "id" field.
func decodeItemID(p rawPayload) (string, error) {
	trimmed := bytes.TrimSpace(p)
	var id string
	switch {
	case len(trimmed) > 0 && trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", errors.Wrapf(ErrMalformedPayload, "decode item id: %v", err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var rp removePayload
		if err := json.Unmarshal(trimmed, &rp); err != nil {
			return "", errors.Wrapf(ErrMalformedPayload, "decode item id: %v", err)
		}
		id = rp.ID
	}
	if id == "" {
		return "", errors.Wrap(ErrMalformedPayload, "REMOVE_FROM_QUEUE requires an item id")
	}
	return id, nil
}

// Encode serializes an Event into a wire frame.
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case AddToQueue:
		payload = e.Item
	case RemoveFromQueue:
		payload = e.ItemID
	case UpdateCurrentSong:
		payload = e.Item
	case JoinSession:
		payload = connectionPayload{ConnectionID: e.ConnectionID}
	case LeaveSession:
		payload = connectionPayload{ConnectionID: e.ConnectionID}
	default:
		return nil, errors.Wrapf(ErrInvalidAction, "cannot encode %T", ev)
	}

	data, err := json.Marshal(outbound{Action: ev.Action(), Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode event")
	}
	return data, nil
}

// EncodeError serializes an ERROR frame.
func EncodeError(code ErrorCode, message string) []byte {
	// ErrorReply only holds strings, so Marshal cannot fail.
	data, _ := json.Marshal(outbound{
		Action:  ActionError,
		Payload: ErrorReply{Code: code, Message: message},
	})
	return data
}

// DecodeError parses an ERROR frame. ok is false for any other frame.
func DecodeError(data []byte) (reply ErrorReply, ok bool) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Action != ActionError {
		return ErrorReply{}, false
	}
	if err := json.Unmarshal(in.Payload, &reply); err != nil {
		return ErrorReply{}, false
	}
	return reply, true
}
