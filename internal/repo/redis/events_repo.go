package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const matchChannelPrefix = "match_events:"

// Event kinds carried on a match's change channel.
const (
	EventMessageAppended = "message_appended"
	EventMessagesRead    = "messages_read"
	EventTypingChanged   = "typing_changed"
	EventMatchCreated    = "match_created"
)

// EventsRepo fans conversation changes out over Redis Pub/Sub. Each match
// has one channel; subscribers re-read state on every event rather than
// trusting the payload as a diff.
type EventsRepo struct {
	client *goredis.Client
}

type Event struct {
	Kind    string    `json:"kind"`
	MatchID string    `json:"match_id"`
	UserID  int64     `json:"user_id,omitempty"`
	At      time.Time `json:"at"`
}

func NewEventsRepo(client *goredis.Client) *EventsRepo {
	return &EventsRepo{client: client}
}

func (r *EventsRepo) Publish(ctx context.Context, event Event) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if event.Kind == "" || event.MatchID == "" {
		return fmt.Errorf("invalid event payload")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	if err := r.client.Publish(ctx, matchChannel(event.MatchID), payload).Err(); err != nil {
		return fmt.Errorf("publish match event: %w", err)
	}
	return nil
}

// Subscribe delivers events for one match until ctx is cancelled.
// Malformed payloads are dropped per-item; the stream keeps going.
func (r *EventsRepo) Subscribe(ctx context.Context, matchID string) (<-chan Event, func(), error) {
	if r.client == nil {
		return nil, nil, fmt.Errorf("redis client is nil")
	}
	if matchID == "" {
		return nil, nil, fmt.Errorf("match id is required")
	}

	pubsub := r.client.Subscribe(ctx, matchChannel(matchID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe match channel: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

func matchChannel(matchID string) string {
	return matchChannelPrefix + matchID
}
