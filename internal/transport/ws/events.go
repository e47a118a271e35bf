package ws

import (
	"encoding/json"
	"time"

	"github.com/emberlabs/ember/backend/internal/domain/model"
)

// Event types, client to server.
const (
	EventTypeMatchSubscribe   = "match.subscribe"
	EventTypeMatchUnsubscribe = "match.unsubscribe"
	EventTypeTypingStart      = "typing.start"
	EventTypeTypingStop       = "typing.stop"
	EventTypePing             = "ping"
)

// Event types, server to client.
const (
	EventTypeMessageList = "message.list"
	EventTypeTypingState = "typing.state"
	EventTypePong        = "pong"
	EventTypeError       = "error"
)

// Event is the envelope for all WebSocket messages. Server deliveries are
// full snapshots, never diffs: message.list carries the whole conversation
// and typing.state the whole set of typing users, so a missed frame is
// repaired by the next one.
type Event struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"match_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

type MessageListPayload struct {
	Messages []model.Message `json:"messages"`
}

type TypingStatePayload struct {
	TypingUserIDs []int64 `json:"typing_user_ids"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewEvent(eventType, matchID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		MatchID:   matchID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
