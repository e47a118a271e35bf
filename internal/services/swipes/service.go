package swipes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/domain/enums"
	"github.com/emberlabs/ember/backend/internal/domain/model"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	redrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrSwipeNotFound     = errors.New("swipe not found")
)

// TooFastError rejects a positive swipe that tripped the rate limiter.
type TooFastError struct {
	RetryAfterSec int64
}

func (e TooFastError) Error() string {
	return fmt.Sprintf("too many likes, retry after %ds", e.RetryAfterSec)
}

func IsTooFast(err error) (TooFastError, bool) {
	var tf TooFastError
	if errors.As(err, &tf) {
		return tf, true
	}
	return TooFastError{}, false
}

type SwipeStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, senderID, receiverID int64, action string, now time.Time) (pgrepo.SwipeRecord, bool, error)
	Get(ctx context.Context, senderID, receiverID int64) (pgrepo.SwipeRecord, error)
	GetReverse(ctx context.Context, tx pgx.Tx, senderID, receiverID int64) (pgrepo.SwipeRecord, error)
}

type MatchStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, userID, targetID int64, now time.Time) (pgrepo.MatchRecord, bool, error)
}

type UserStore interface {
	IncrementLikes(ctx context.Context, tx pgx.Tx, userID int64) error
	IncrementMatches(ctx context.Context, tx pgx.Tx, userA, userB int64) error
}

type RateLimiter interface {
	AllowLike(ctx context.Context, userID int64) (int64, bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event redrepo.Event) error
}

type Result struct {
	Success bool
	IsMatch bool
	MatchID string
}

type Service struct {
	pool       *pgxpool.Pool
	swipeStore SwipeStore
	matchStore MatchStore
	userStore  UserStore
	limiter    RateLimiter
	events     EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	runTx      func(context.Context, func(context.Context, pgx.Tx) error) error
}

type Dependencies struct {
	Pool       *pgxpool.Pool
	SwipeStore SwipeStore
	MatchStore MatchStore
	UserStore  UserStore
	Limiter    RateLimiter
	Events     EventPublisher
	Logger     *zap.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		pool:       deps.Pool,
		swipeStore: deps.SwipeStore,
		matchStore: deps.MatchStore,
		userStore:  deps.UserStore,
		limiter:    deps.Limiter,
		events:     deps.Events,
		logger:     logger,
		now:        time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}
	return s
}

// RecordSwipe writes the unilateral decision at its ordered-pair key and,
// for a positive action, checks the reverse direction and materializes the
// canonical match when the pair is mutual. Both participants completing
// the pair near-simultaneously converge on one match row; only the writer
// whose insert landed reports IsMatch and publishes the match event, so
// match side effects fire once.
func (s *Service) RecordSwipe(ctx context.Context, senderID, receiverID int64, action string) (Result, error) {
	if senderID <= 0 || receiverID <= 0 || senderID == receiverID {
		return Result{}, ErrValidation
	}

	normalized, err := normalizeAction(action)
	if err != nil {
		return Result{}, err
	}

	if isPositive(normalized) && s.limiter != nil {
		retryAfter, allowed, err := s.limiter.AllowLike(ctx, senderID)
		if err != nil {
			return Result{}, fmt.Errorf("apply like rate limiter: %w", err)
		}
		if !allowed {
			return Result{}, TooFastError{RetryAfterSec: retryAfter}
		}
	}

	if s.runTx == nil || s.swipeStore == nil || s.matchStore == nil {
		return Result{}, fmt.Errorf("swipe dependencies are not configured")
	}

	now := s.now().UTC()
	var (
		matchCreated bool
		matchID      string
	)
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		_, inserted, err := s.swipeStore.Upsert(txCtx, tx, senderID, receiverID, normalized, now)
		if err != nil {
			return err
		}

		if !isPositive(normalized) {
			return nil
		}

		if inserted && s.userStore != nil {
			if err := s.userStore.IncrementLikes(txCtx, tx, receiverID); err != nil {
				return err
			}
		}

		reverse, err := s.swipeStore.GetReverse(txCtx, tx, senderID, receiverID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSwipeNotFound) {
				return nil
			}
			return err
		}
		if !isPositive(reverse.Action) {
			return nil
		}

		match, created, err := s.matchStore.Upsert(txCtx, tx, senderID, receiverID, now)
		if err != nil {
			return err
		}
		matchID = match.ID
		matchCreated = created

		if created && s.userStore != nil {
			if err := s.userStore.IncrementMatches(txCtx, tx, match.UserAID, match.UserBID); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.logger.Error("record swipe failed",
			zap.Int64("sender_id", senderID),
			zap.Int64("receiver_id", receiverID),
			zap.String("action", normalized),
			zap.Error(err),
		)
		return Result{}, err
	}

	if matchCreated {
		s.publishMatchCreated(ctx, matchID, senderID, now)
	}

	return Result{
		Success: true,
		IsMatch: matchID != "",
		MatchID: matchID,
	}, nil
}

// GetSwipe is the point read for one ordered pair.
func (s *Service) GetSwipe(ctx context.Context, senderID, receiverID int64) (model.Swipe, error) {
	if senderID <= 0 || receiverID <= 0 {
		return model.Swipe{}, ErrValidation
	}
	if s.swipeStore == nil {
		return model.Swipe{}, fmt.Errorf("swipe store is nil")
	}

	rec, err := s.swipeStore.Get(ctx, senderID, receiverID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrSwipeNotFound) {
			return model.Swipe{}, ErrSwipeNotFound
		}
		return model.Swipe{}, err
	}
	return model.Swipe{
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Action:     enums.SwipeAction(rec.Action),
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (s *Service) publishMatchCreated(ctx context.Context, matchID string, senderID int64, at time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, redrepo.Event{
		Kind:    redrepo.EventMatchCreated,
		MatchID: matchID,
		UserID:  senderID,
		At:      at,
	}); err != nil {
		s.logger.Warn("publish match created event failed",
			zap.String("match_id", matchID),
			zap.Error(err),
		)
	}
}

func normalizeAction(input string) (string, error) {
	value := strings.ToUpper(strings.TrimSpace(input))
	value = strings.ReplaceAll(value, "-", "_")
	if value == "SUPERLIKE" {
		value = string(enums.SwipeActionSuperLike)
	}
	switch enums.SwipeAction(value) {
	case enums.SwipeActionLike, enums.SwipeActionSuperLike, enums.SwipeActionPass:
		return value, nil
	default:
		return "", ErrUnsupportedAction
	}
}

func isPositive(action string) bool {
	return enums.SwipeAction(action).IsPositive()
}
