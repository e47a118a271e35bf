package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/domain/model"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("user is not a participant of the match")
	ErrValidation     = errors.New("validation error")
)

type MatchStore interface {
	Get(ctx context.Context, matchID string) (pgrepo.MatchRecord, error)
	ListActiveForUser(ctx context.Context, userID int64, limit int) ([]pgrepo.ConversationRecord, error)
	Deactivate(ctx context.Context, matchID string) (bool, error)
}

type Config struct {
	ListLimit int
}

type Dependencies struct {
	Matches MatchStore
	Logger  *zap.Logger
}

type Service struct {
	matches MatchStore
	logger  *zap.Logger
	cfg     Config

	now func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 100
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		matches: deps.Matches,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// List returns the user's active matches, most recent activity first.
func (s *Service) List(ctx context.Context, userID int64) ([]model.Match, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id %d", ErrValidation, userID)
	}

	records, err := s.matches.ListActiveForUser(ctx, userID, s.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list matches for %d: %w", userID, err)
	}

	items := make([]model.Match, 0, len(records))
	for _, rec := range records {
		items = append(items, toModel(rec.MatchRecord))
	}
	return items, nil
}

// Get loads a match after verifying the caller participates in it. A
// match the caller is not part of reads as not found.
func (s *Service) Get(ctx context.Context, userID int64, matchID string) (model.Match, error) {
	match, err := s.authorize(ctx, userID, matchID)
	if err != nil {
		return model.Match{}, err
	}
	return match, nil
}

// Unmatch deactivates the match for both participants. The row stays so
// the canonical id can never be recreated as a fresh conversation.
func (s *Service) Unmatch(ctx context.Context, userID int64, matchID string) error {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return err
	}

	changed, err := s.matches.Deactivate(ctx, matchID)
	if err != nil {
		return fmt.Errorf("deactivate match %s: %w", matchID, err)
	}
	if changed {
		s.logger.Info("match deactivated",
			zap.String("match_id", matchID),
			zap.Int64("user_id", userID),
		)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, userID int64, matchID string) (model.Match, error) {
	if userID <= 0 || matchID == "" {
		return model.Match{}, fmt.Errorf("%w: user id and match id are required", ErrValidation)
	}

	rec, err := s.matches.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("get match %s: %w", matchID, err)
	}

	match := toModel(rec)
	if !match.HasParticipant(userID) {
		return model.Match{}, ErrNotParticipant
	}
	return match, nil
}

func toModel(rec pgrepo.MatchRecord) model.Match {
	return model.Match{
		ID:              rec.ID,
		UserAID:         rec.UserAID,
		UserBID:         rec.UserBID,
		IsActive:        rec.IsActive,
		LastMessage:     rec.LastMessage,
		LastMessageTime: rec.LastMessageTime,
		CreatedAt:       rec.CreatedAt,
	}
}
