package ws

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	chatsvc "github.com/emberlabs/ember/backend/internal/services/chat"
)

// ServeWS upgrades to WebSocket. Auth rides a ?token=xxx query param
// because browsers cannot set headers on WebSocket handshakes.
func ServeWS(hub *Hub, jwtManager *authsvc.JWTManager, chat *chatsvc.Service, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := jwtManager.ParseAccessToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("ws accept failed", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, chat, claims.UserID, logger)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
