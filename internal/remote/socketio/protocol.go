package socketio

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bhandras/delight-chat/internal/chat"
)

// Request and push event names of the chat backend.
const (
	EventChannel = "channel.event"

	ReqWatch          = "channel.watch"
	ReqQuery          = "channel.query"
	ReqReplies        = "message.replies"
	ReqSendMessage    = "message.send"
	ReqUpdateMessage  = "message.update"
	ReqDeleteMessage  = "message.delete"
	ReqSendReaction   = "reaction.send"
	ReqDeleteReaction = "reaction.delete"
	ReqMarkRead       = "channel.read"
)

const resultSuccess = "success"

var (
	// ErrMissingAck is returned when the server acknowledges without a
	// payload.
	ErrMissingAck = errors.New("missing ack")

	// ErrRejected is returned when the server answers with a non-success
	// result.
	ErrRejected = errors.New("request rejected")
)

type watchAck struct {
	State  chat.Snapshot `json:"state"`
	Config chat.Config   `json:"config"`
	Unread int           `json:"unread"`
}

type messagesAck struct {
	Messages []chat.Message `json:"messages"`
}

type messageAck struct {
	Message chat.Message `json:"message"`
}

// checkAck validates the result field of an acknowledgement.
func checkAck(event string, resp map[string]any) error {
	if resp == nil {
		return fmt.Errorf("%s: %w", event, ErrMissingAck)
	}
	result, _ := resp["result"].(string)
	if result == resultSuccess {
		return nil
	}
	if msg, ok := resp["error"].(string); ok && msg != "" {
		return fmt.Errorf("%s: %w: %s", event, ErrRejected, msg)
	}
	return fmt.Errorf("%s: %w: %q", event, ErrRejected, result)
}

// decode converts a loosely typed Socket.IO payload into out.
func decode(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// encode converts v into a Socket.IO payload map.
func encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return out, nil
}
