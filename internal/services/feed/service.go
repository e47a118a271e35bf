package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/domain/model"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	"github.com/emberlabs/ember/backend/internal/services/queue"
)

var ErrViewerNotFound = errors.New("viewer not found")

// CandidateStore lists discoverable profiles for a viewer.
type CandidateStore interface {
	ListCandidates(ctx context.Context, q pgrepo.CandidateQuery) ([]pgrepo.CandidateRecord, error)
}

// ProfileStore resolves the viewer profile that shapes the query.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.User, error)
}

type Config struct {
	BatchSize int
}

type Dependencies struct {
	Candidates CandidateStore
	Profiles   ProfileStore
	Logger     *zap.Logger
}

// Service supplies candidate batches for the swipe queue. It satisfies
// queue.Supplier.
type Service struct {
	candidates CandidateStore
	profiles   ProfileStore
	logger     *zap.Logger
	cfg        Config
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		candidates: deps.Candidates,
		profiles:   deps.Profiles,
		logger:     logger,
		cfg:        cfg,
	}
}

// NextBatch loads up to limit fresh candidates for the viewer, filtered
// by the viewer's interest set and minus anything already queued.
func (s *Service) NextBatch(ctx context.Context, viewerID int64, exclude []int64, limit int) ([]queue.Candidate, error) {
	if viewerID <= 0 {
		return nil, fmt.Errorf("invalid viewer id %d", viewerID)
	}
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return nil, ErrViewerNotFound
		}
		return nil, fmt.Errorf("load viewer %d: %w", viewerID, err)
	}

	records, err := s.candidates.ListCandidates(ctx, pgrepo.CandidateQuery{
		ViewerID:    viewerID,
		Genders:     viewer.InterestedIn,
		Limit:       limit,
		ExcludeUser: exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates for %d: %w", viewerID, err)
	}

	batch := make([]queue.Candidate, 0, len(records))
	for _, rec := range records {
		batch = append(batch, queue.Candidate{
			UserID:      rec.UserID,
			DisplayName: rec.DisplayName,
		})
	}
	return batch, nil
}
