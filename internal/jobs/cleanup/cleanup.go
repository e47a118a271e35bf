package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// typingSweepStore removes typing indicators older than a cutoff.
type typingSweepStore interface {
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type Config struct {
	Interval     time.Duration
	TypingWindow time.Duration
}

// TypingSweeper periodically clears typing indicators that clients never
// cleared, usually after an abrupt disconnect. Readers already filter
// stale indicators, so the sweep is storage hygiene, not correctness.
type TypingSweeper struct {
	store  typingSweepStore
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func NewTypingSweeper(store typingSweepStore, cfg Config, logger *zap.Logger) *TypingSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TypingSweeper{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *TypingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TypingSweeper) sweep(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.cfg.TypingWindow)
	deleted, err := s.store.SweepOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Warn("typing sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("typing sweep completed", zap.Int("deleted", deleted))
	}
}
