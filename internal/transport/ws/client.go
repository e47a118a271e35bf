package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	chatsvc "github.com/emberlabs/ember/backend/internal/services/chat"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 64
)

// matchSubscription holds the cancel handles for one match's streams.
type matchSubscription struct {
	cancel context.CancelFunc
}

// Client is a single WebSocket connection. Each subscribed match gets two
// server-side streams, messages and typing state, both delivered as full
// snapshots into the send queue.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	chat   *chatsvc.Service
	userID int64
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]matchSubscription

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, chat *chatsvc.Service, userID int64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hub:    hub,
		conn:   conn,
		chat:   chat,
		userID: userID,
		logger: logger,
		subs:   make(map[string]matchSubscription),
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

// ReadPump reads client events until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		if err := wsjson.Read(context.Background(), c.conn, &event); err != nil {
			if websocket.CloseStatus(err) == -1 {
				c.logger.Debug("ws read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}
		c.handleEvent(&event)
	}
}

// WritePump drains the send queue into the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeMatchSubscribe:
		if event.MatchID == "" {
			c.sendError("INVALID_PAYLOAD", "match_id is required")
			return
		}
		c.subscribe(event.MatchID)

	case EventTypeMatchUnsubscribe:
		if event.MatchID == "" {
			c.sendError("INVALID_PAYLOAD", "match_id is required")
			return
		}
		c.unsubscribe(event.MatchID)

	case EventTypeTypingStart, EventTypeTypingStop:
		if event.MatchID == "" {
			c.sendError("INVALID_PAYLOAD", "match_id is required")
			return
		}
		isTyping := event.Type == EventTypeTypingStart
		if err := c.chat.SetTypingStatus(context.Background(), c.userID, event.MatchID, isTyping); err != nil {
			c.sendError("TYPING_FAILED", "failed to update typing status")
		}

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// subscribe opens the message and typing streams for a match. Repeated
// subscribes to the same match are no-ops.
func (c *Client) subscribe(matchID string) {
	c.mu.Lock()
	if _, ok := c.subs[matchID]; ok {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.subs[matchID] = matchSubscription{cancel: cancel}
	c.mu.Unlock()

	messages, stopMessages, err := c.chat.SubscribeToMessages(ctx, c.userID, matchID)
	if err != nil {
		cancel()
		c.dropSubscription(matchID)
		c.sendError("SUBSCRIBE_FAILED", "failed to subscribe to match")
		return
	}
	typing, stopTyping, err := c.chat.SubscribeToTypingStatus(ctx, c.userID, matchID)
	if err != nil {
		stopMessages()
		cancel()
		c.dropSubscription(matchID)
		c.sendError("SUBSCRIBE_FAILED", "failed to subscribe to match")
		return
	}

	go func() {
		defer stopMessages()
		for snapshot := range messages {
			c.sendEvent(EventTypeMessageList, matchID, MessageListPayload{Messages: snapshot})
		}
	}()
	go func() {
		defer stopTyping()
		for ids := range typing {
			c.sendEvent(EventTypeTypingState, matchID, TypingStatePayload{TypingUserIDs: ids})
		}
	}()
}

func (c *Client) unsubscribe(matchID string) {
	c.mu.Lock()
	sub, ok := c.subs[matchID]
	if ok {
		delete(c.subs, matchID)
	}
	c.mu.Unlock()

	if ok {
		sub.cancel()
		c.chat.ClearTypingStatus(context.Background(), c.userID, matchID)
	}
}

func (c *Client) dropSubscription(matchID string) {
	c.mu.Lock()
	delete(c.subs, matchID)
	c.mu.Unlock()
}

// teardown cancels all streams and clears the user's typing flags. Called
// by the hub on unregister. The send queue is never closed: subscription
// goroutines may still be delivering a final snapshot, so writers check
// done instead and WritePump exits on it.
func (c *Client) teardown() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]matchSubscription)
	c.mu.Unlock()

	for matchID, sub := range subs {
		sub.cancel()
		c.chat.ClearTypingStatus(context.Background(), c.userID, matchID)
	}
	close(c.done)
}

func (c *Client) sendEvent(eventType, matchID string, payload any) {
	event, err := NewEvent(eventType, matchID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		// Slow consumer: drop the frame, the next snapshot supersedes it.
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong})
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	event, err := NewEvent(EventTypeError, "", ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}
