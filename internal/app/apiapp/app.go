package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/config"
	"github.com/emberlabs/ember/backend/internal/jobs/cleanup"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	redrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	chatsvc "github.com/emberlabs/ember/backend/internal/services/chat"
	feedsvc "github.com/emberlabs/ember/backend/internal/services/feed"
	matchessvc "github.com/emberlabs/ember/backend/internal/services/matches"
	queuesvc "github.com/emberlabs/ember/backend/internal/services/queue"
	ratesvc "github.com/emberlabs/ember/backend/internal/services/rate"
	swipesvc "github.com/emberlabs/ember/backend/internal/services/swipes"
	wstransport "github.com/emberlabs/ember/backend/internal/transport/ws"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	wsHub      *wstransport.Hub
	sweeper    *cleanup.TypingSweeper
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	typingRepo := redrepo.NewTypingRepo(redisClient)
	eventsRepo := redrepo.NewEventsRepo(redisClient)

	swipeRepo := pgrepo.NewSwipeRepo(pool)
	matchRepo := pgrepo.NewMatchRepo(pool)
	messageRepo := pgrepo.NewMessageRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	feedRepo := pgrepo.NewFeedRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Limits.LikeMaxPerMinute, cfg.Limits.LikeMaxPer10Sec)

	swipeService := swipesvc.NewService(swipesvc.Dependencies{
		Pool:       pool,
		SwipeStore: swipeRepo,
		MatchStore: matchRepo,
		UserStore:  userRepo,
		Limiter:    rateLimiter,
		Events:     eventsRepo,
		Logger:     log,
	})
	feedService := feedsvc.NewService(feedsvc.Dependencies{
		Candidates: feedRepo,
		Profiles:   userRepo,
		Logger:     log,
	}, feedsvc.Config{BatchSize: cfg.Queue.BatchSize})
	queueManager := queuesvc.NewManager(swipeService, feedService, queuesvc.Config{
		RefillThreshold: cfg.Queue.RefillThreshold,
		Lookahead:       cfg.Queue.Lookahead,
		BatchSize:       cfg.Queue.BatchSize,
		SwipeCooldown:   cfg.Queue.SwipeCooldown,
	}, log)
	matchesService := matchessvc.NewService(matchessvc.Dependencies{
		Matches: matchRepo,
		Logger:  log,
	}, matchessvc.Config{})
	chatService := chatsvc.NewService(chatsvc.Dependencies{
		Messages: messageRepo,
		Matches:  matchRepo,
		Typing:   typingRepo,
		Events:   eventsRepo,
		Logger:   log,
	}, chatsvc.Config{
		TypingWindow:    cfg.Chat.TypingWindow,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
		PageLimit:       cfg.Chat.PageLimit,
	})

	wsHub := wstransport.NewHub(log)
	sweeper := cleanup.NewTypingSweeper(typingRepo, cleanup.Config{
		Interval:     cfg.Jobs.TypingSweepInterval,
		TypingWindow: cfg.Chat.TypingWindow,
	}, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		JWTManager:   jwtManager,
		SwipeService: swipeService,
		FeedService:  feedService,
		QueueManager: queueManager,
		MatchService: matchesService,
		ChatService:  chatService,
		WSHub:        wsHub,
		Logger:       log,
		Config:       cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		wsHub:      wsHub,
		sweeper:    sweeper,
		httpRouter: r,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.wsHub.Run(ctx)
	go a.sweeper.Run(ctx)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
