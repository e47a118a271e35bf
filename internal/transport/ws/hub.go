package ws

import (
	"context"

	"go.uber.org/zap"
)

// Hub tracks active WebSocket clients. Fan-out itself happens through the
// per-match Redis channels each client subscribes to, so the hub only owns
// connection accounting and teardown.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run is the hub's event loop. Call it in a goroutine; it returns once
// ctx is cancelled, after tearing down every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.teardown()
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("ws client connected",
				zap.Int64("user_id", client.userID),
				zap.Int("total", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.teardown()
				h.logger.Info("ws client disconnected",
					zap.Int64("user_id", client.userID),
					zap.Int("total", len(h.clients)),
				)
			}
		}
	}
}
