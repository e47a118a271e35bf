package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/config"
	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	chatsvc "github.com/emberlabs/ember/backend/internal/services/chat"
	feedsvc "github.com/emberlabs/ember/backend/internal/services/feed"
	matchessvc "github.com/emberlabs/ember/backend/internal/services/matches"
	queuesvc "github.com/emberlabs/ember/backend/internal/services/queue"
	swipesvc "github.com/emberlabs/ember/backend/internal/services/swipes"
	"github.com/emberlabs/ember/backend/internal/transport/http/handlers"
	wstransport "github.com/emberlabs/ember/backend/internal/transport/ws"
)

type Dependencies struct {
	JWTManager   *authsvc.JWTManager
	SwipeService *swipesvc.Service
	FeedService  *feedsvc.Service
	QueueManager *queuesvc.Manager
	MatchService *matchessvc.Service
	ChatService  *chatsvc.Service
	WSHub        *wstransport.Hub
	Logger       *zap.Logger
	Config       config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	swipeHandler := handlers.NewSwipeHandler(deps.SwipeService)
	feedHandler := handlers.NewFeedHandler(deps.FeedService)
	queueHandler := handlers.NewQueueHandler(deps.QueueManager)
	matchesHandler := handlers.NewMatchesHandler(deps.MatchService)
	chatHandler := handlers.NewChatHandler(deps.ChatService)

	r.Get("/healthz", healthHandler.Get)

	if deps.WSHub != nil {
		r.Get("/v1/ws", wstransport.ServeWS(deps.WSHub, deps.JWTManager, deps.ChatService, deps.Logger))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(deps.JWTManager, deps.Logger))

		r.Post("/swipes", swipeHandler.Handle)
		r.Get("/swipes/{targetID}", swipeHandler.Get)

		r.Get("/feed", feedHandler.Get)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", queueHandler.Window)
			r.Post("/advance", queueHandler.Advance)
			r.Post("/superlike", queueHandler.SuperLike)
			r.Post("/reset", queueHandler.Reset)
		})

		r.Get("/matches", matchesHandler.List)
		r.Delete("/matches/{matchID}", matchesHandler.Unmatch)

		r.Get("/conversations", chatHandler.Conversations)
		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/messages", chatHandler.Messages)
			r.Post("/messages", chatHandler.Send)
			r.Post("/read", chatHandler.MarkRead)
			r.Post("/viewed", chatHandler.MarkViewed)
			r.Get("/unread", chatHandler.Unread)
			r.Get("/typing", chatHandler.Typing)
			r.Post("/typing", chatHandler.SetTyping)
		})
	})
}
