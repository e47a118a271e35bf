package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	swipesvc "github.com/emberlabs/ember/backend/internal/services/swipes"
)

var (
	ErrBusy      = errors.New("swipe already in progress")
	ErrExhausted = errors.New("candidate queue exhausted")
)

type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

type Candidate struct {
	UserID      int64
	DisplayName string
}

type Recorder interface {
	RecordSwipe(ctx context.Context, senderID, receiverID int64, action string) (swipesvc.Result, error)
}

// Supplier is the external profile-supply collaborator. It may return an
// empty batch.
type Supplier interface {
	NextBatch(ctx context.Context, viewerID int64, exclude []int64, limit int) ([]Candidate, error)
}

type Config struct {
	RefillThreshold int
	Lookahead       int
	BatchSize       int
	SwipeCooldown   time.Duration
}

// Session owns one user's candidate queue. All state transitions happen
// under the session mutex; the swipe write itself is fired asynchronously
// so a slow store never blocks the next gesture beyond the cooldown.
type Session struct {
	userID   int64
	recorder Recorder
	supplier Supplier
	cfg      Config
	logger   *zap.Logger

	mu           sync.Mutex
	queue        []Candidate
	cursor       int
	processed    map[int64]struct{}
	isProcessing bool
	loadingMore  bool

	// pending tracks in-flight swipe submissions and refills.
	pending sync.WaitGroup
}

func NewSession(userID int64, recorder Recorder, supplier Supplier, cfg Config, logger *zap.Logger) *Session {
	if cfg.RefillThreshold <= 0 {
		cfg.RefillThreshold = 3
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		userID:    userID,
		recorder:  recorder,
		supplier:  supplier,
		cfg:       cfg,
		logger:    logger,
		queue:     []Candidate{},
		processed: make(map[int64]struct{}),
	}
}

// Advance consumes the top candidate: right maps to LIKE, left to PASS.
// The candidate is marked processed before the write is fired, so a
// re-invocation during the outstanding call can never resubmit it.
func (s *Session) Advance(ctx context.Context, direction Direction) (Candidate, error) {
	action := "PASS"
	if direction == DirectionRight {
		action = "LIKE"
	}
	return s.advance(ctx, action)
}

// SuperLike is a distinct explicit trigger, never derived from a gesture.
func (s *Session) SuperLike(ctx context.Context) (Candidate, error) {
	return s.advance(ctx, "SUPER_LIKE")
}

func (s *Session) advance(ctx context.Context, action string) (Candidate, error) {
	s.mu.Lock()

	if s.isProcessing {
		s.mu.Unlock()
		return Candidate{}, ErrBusy
	}
	if s.cursor >= len(s.queue) {
		s.mu.Unlock()
		return Candidate{}, ErrExhausted
	}

	current := s.queue[s.cursor]
	if _, done := s.processed[current.UserID]; done {
		// Defensive: a stale top entry is skipped without a submission.
		s.cursor++
		s.maybeRefillLocked(ctx)
		s.mu.Unlock()
		return current, nil
	}

	s.processed[current.UserID] = struct{}{}
	s.cursor++
	s.isProcessing = true

	s.pending.Add(1)
	go s.submit(context.WithoutCancel(ctx), current.UserID, action)

	if s.cfg.SwipeCooldown > 0 {
		time.AfterFunc(s.cfg.SwipeCooldown, s.releaseProcessing)
	} else {
		s.isProcessing = false
	}

	s.maybeRefillLocked(ctx)
	s.mu.Unlock()

	return current, nil
}

// submit is fire-and-forget: a failed write is logged, never retried, and
// the queue proceeds optimistically.
func (s *Session) submit(ctx context.Context, targetID int64, action string) {
	defer s.pending.Done()

	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.RecordSwipe(ctx, s.userID, targetID, action); err != nil {
		s.logger.Warn("swipe submission failed",
			zap.Int64("user_id", s.userID),
			zap.Int64("target_id", targetID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Session) releaseProcessing() {
	s.mu.Lock()
	s.isProcessing = false
	s.mu.Unlock()
}

// maybeRefillLocked requests one batch from the supplier when the count
// of unprocessed entries at or ahead of the cursor crosses the threshold.
// The loadingMore flag keeps a single request outstanding.
func (s *Session) maybeRefillLocked(ctx context.Context) {
	if s.supplier == nil || s.loadingMore || len(s.queue) == 0 {
		return
	}
	if s.unprocessedAheadLocked() > s.cfg.RefillThreshold {
		return
	}

	s.loadingMore = true
	exclude := make([]int64, 0, len(s.queue))
	for _, c := range s.queue {
		exclude = append(exclude, c.UserID)
	}

	s.pending.Add(1)
	go s.refill(context.WithoutCancel(ctx), exclude)
}

func (s *Session) refill(ctx context.Context, exclude []int64) {
	defer s.pending.Done()

	batch, err := s.supplier.NextBatch(ctx, s.userID, exclude, s.cfg.BatchSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false

	if err != nil {
		s.logger.Warn("candidate refill failed", zap.Int64("user_id", s.userID), zap.Error(err))
		return
	}

	known := make(map[int64]struct{}, len(s.queue))
	for _, c := range s.queue {
		known[c.UserID] = struct{}{}
	}
	for _, c := range batch {
		if _, dup := known[c.UserID]; dup {
			continue
		}
		known[c.UserID] = struct{}{}
		s.queue = append(s.queue, c)
	}
}

// Reset replaces the queue wholesale, e.g. after a filter change. The
// processed set is cleared so ids recurring in the fresh batch are not
// treated as already handled.
func (s *Session) Reset(batch []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append([]Candidate(nil), batch...)
	s.cursor = 0
	s.processed = make(map[int64]struct{})
	s.loadingMore = false
}

// Window materializes up to lookahead+1 entries: the top plus the cards
// rendered behind it. Processed non-top entries are skipped defensively.
func (s *Session) Window() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := make([]Candidate, 0, s.cfg.Lookahead+1)
	for idx := s.cursor; idx < len(s.queue) && len(window) <= s.cfg.Lookahead; idx++ {
		candidate := s.queue[idx]
		if len(window) > 0 {
			if _, done := s.processed[candidate.UserID]; done {
				continue
			}
		}
		window = append(window, candidate)
	}
	return window
}

func (s *Session) unprocessedAheadLocked() int {
	count := 0
	for idx := s.cursor; idx < len(s.queue); idx++ {
		if _, done := s.processed[s.queue[idx].UserID]; !done {
			count++
		}
	}
	return count
}

// Wait blocks until in-flight submissions and refills settle.
func (s *Session) Wait() {
	s.pending.Wait()
}
