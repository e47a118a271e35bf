package swipes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/domain/rules"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	redrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
)

type fakeSwipeStore struct {
	records map[string]pgrepo.SwipeRecord
	failing bool
}

func newFakeSwipeStore() *fakeSwipeStore {
	return &fakeSwipeStore{records: make(map[string]pgrepo.SwipeRecord)}
}

func (s *fakeSwipeStore) Upsert(_ context.Context, _ pgx.Tx, senderID, receiverID int64, action string, now time.Time) (pgrepo.SwipeRecord, bool, error) {
	if s.failing {
		return pgrepo.SwipeRecord{}, false, errors.New("store unavailable")
	}
	key := rules.PairKey(senderID, receiverID)
	_, existed := s.records[key]
	rec := pgrepo.SwipeRecord{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Action:     action,
		CreatedAt:  now,
	}
	s.records[key] = rec
	return rec, !existed, nil
}

func (s *fakeSwipeStore) Get(_ context.Context, senderID, receiverID int64) (pgrepo.SwipeRecord, error) {
	rec, ok := s.records[rules.PairKey(senderID, receiverID)]
	if !ok {
		return pgrepo.SwipeRecord{}, pgrepo.ErrSwipeNotFound
	}
	return rec, nil
}

func (s *fakeSwipeStore) GetReverse(_ context.Context, _ pgx.Tx, senderID, receiverID int64) (pgrepo.SwipeRecord, error) {
	rec, ok := s.records[rules.PairKey(receiverID, senderID)]
	if !ok {
		return pgrepo.SwipeRecord{}, pgrepo.ErrSwipeNotFound
	}
	return rec, nil
}

type fakeMatchStore struct {
	matches map[string]pgrepo.MatchRecord
	upserts int
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{matches: make(map[string]pgrepo.MatchRecord)}
}

func (s *fakeMatchStore) Upsert(_ context.Context, _ pgx.Tx, userID, targetID int64, now time.Time) (pgrepo.MatchRecord, bool, error) {
	s.upserts++
	id := rules.MatchKey(userID, targetID)
	if existing, ok := s.matches[id]; ok {
		existing.IsActive = true
		s.matches[id] = existing
		return existing, false, nil
	}
	userA, userB := rules.SortPair(userID, targetID)
	rec := pgrepo.MatchRecord{
		ID:        id,
		UserAID:   userA,
		UserBID:   userB,
		IsActive:  true,
		CreatedAt: now,
	}
	s.matches[id] = rec
	return rec, true, nil
}

type fakeUserStore struct {
	likes   map[int64]int
	matches map[int64]int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{likes: make(map[int64]int), matches: make(map[int64]int)}
}

func (s *fakeUserStore) IncrementLikes(_ context.Context, _ pgx.Tx, userID int64) error {
	s.likes[userID]++
	return nil
}

func (s *fakeUserStore) IncrementMatches(_ context.Context, _ pgx.Tx, userA, userB int64) error {
	s.matches[userA]++
	s.matches[userB]++
	return nil
}

type fakePublisher struct {
	events []redrepo.Event
}

func (p *fakePublisher) Publish(_ context.Context, event redrepo.Event) error {
	p.events = append(p.events, event)
	return nil
}

type limiterStub struct {
	allowed    bool
	retryAfter int64
}

func (s limiterStub) AllowLike(context.Context, int64) (int64, bool, error) {
	return s.retryAfter, s.allowed, nil
}

func newTestService(swipeStore *fakeSwipeStore, matchStore *fakeMatchStore, userStore *fakeUserStore, pub *fakePublisher) *Service {
	svc := &Service{
		swipeStore: swipeStore,
		matchStore: matchStore,
		userStore:  userStore,
		events:     pub,
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	}
	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return fn(ctx, nil)
	}
	return svc
}

func TestMutualLikeCreatesSingleCanonicalMatch(t *testing.T) {
	swipeStore := newFakeSwipeStore()
	matchStore := newFakeMatchStore()
	userStore := newFakeUserStore()
	pub := &fakePublisher{}
	svc := newTestService(swipeStore, matchStore, userStore, pub)

	ctx := context.Background()

	first, err := svc.RecordSwipe(ctx, 42, 7, "LIKE")
	if err != nil {
		t.Fatalf("first swipe: %v", err)
	}
	if first.IsMatch {
		t.Fatalf("one-sided like must not match")
	}

	second, err := svc.RecordSwipe(ctx, 7, 42, "LIKE")
	if err != nil {
		t.Fatalf("second swipe: %v", err)
	}
	if !second.IsMatch {
		t.Fatalf("mutual like must match")
	}
	if second.MatchID != "7_42" {
		t.Fatalf("unexpected match id: %s", second.MatchID)
	}

	if len(matchStore.matches) != 1 {
		t.Fatalf("expected exactly one match row, got %d", len(matchStore.matches))
	}
	if _, ok := matchStore.matches["7_42"]; !ok {
		t.Fatalf("match row must live at the canonical id")
	}

	if len(pub.events) != 1 || pub.events[0].Kind != redrepo.EventMatchCreated {
		t.Fatalf("expected one match-created event, got %+v", pub.events)
	}
	if userStore.matches[7] != 1 || userStore.matches[42] != 1 {
		t.Fatalf("both participants should gain one match: %+v", userStore.matches)
	}
}

func TestMatchIDIsCommutativeAcrossDetectionOrder(t *testing.T) {
	for _, order := range [][2]int64{{42, 7}, {7, 42}} {
		swipeStore := newFakeSwipeStore()
		matchStore := newFakeMatchStore()
		svc := newTestService(swipeStore, matchStore, newFakeUserStore(), &fakePublisher{})

		ctx := context.Background()
		if _, err := svc.RecordSwipe(ctx, order[0], order[1], "SUPER_LIKE"); err != nil {
			t.Fatalf("swipe: %v", err)
		}
		result, err := svc.RecordSwipe(ctx, order[1], order[0], "LIKE")
		if err != nil {
			t.Fatalf("swipe: %v", err)
		}
		if result.MatchID != "7_42" {
			t.Fatalf("detection order %v produced match id %s", order, result.MatchID)
		}
	}
}

func TestPassNeverMatches(t *testing.T) {
	swipeStore := newFakeSwipeStore()
	matchStore := newFakeMatchStore()
	svc := newTestService(swipeStore, matchStore, newFakeUserStore(), &fakePublisher{})

	ctx := context.Background()
	if _, err := svc.RecordSwipe(ctx, 42, 7, "PASS"); err != nil {
		t.Fatalf("pass swipe: %v", err)
	}
	result, err := svc.RecordSwipe(ctx, 7, 42, "LIKE")
	if err != nil {
		t.Fatalf("like swipe: %v", err)
	}
	if result.IsMatch {
		t.Fatalf("pass then like must not match")
	}
	if matchStore.upserts != 0 {
		t.Fatalf("match store should never be touched, got %d upserts", matchStore.upserts)
	}
}

func TestRepeatSwipeOverwritesWithoutDoubleCounting(t *testing.T) {
	swipeStore := newFakeSwipeStore()
	userStore := newFakeUserStore()
	svc := newTestService(swipeStore, newFakeMatchStore(), userStore, &fakePublisher{})

	ctx := context.Background()
	if _, err := svc.RecordSwipe(ctx, 42, 7, "LIKE"); err != nil {
		t.Fatalf("first like: %v", err)
	}
	if _, err := svc.RecordSwipe(ctx, 42, 7, "LIKE"); err != nil {
		t.Fatalf("repeat like: %v", err)
	}

	if len(swipeStore.records) != 1 {
		t.Fatalf("ordered pair must hold a single record, got %d", len(swipeStore.records))
	}
	if userStore.likes[7] != 1 {
		t.Fatalf("receiver like counter must not double count: %d", userStore.likes[7])
	}
}

func TestRateLimitedLikeReturnsTooFast(t *testing.T) {
	svc := newTestService(newFakeSwipeStore(), newFakeMatchStore(), newFakeUserStore(), &fakePublisher{})
	svc.limiter = limiterStub{allowed: false, retryAfter: 30}

	_, err := svc.RecordSwipe(context.Background(), 42, 7, "LIKE")
	tf, ok := IsTooFast(err)
	if !ok {
		t.Fatalf("expected TooFastError, got %v", err)
	}
	if tf.RetryAfterSec != 30 {
		t.Fatalf("unexpected retry-after: %d", tf.RetryAfterSec)
	}

	// Passes are never throttled.
	if _, err := svc.RecordSwipe(context.Background(), 42, 7, "PASS"); err != nil {
		t.Fatalf("pass should bypass the limiter: %v", err)
	}
}

func TestRecordSwipeValidation(t *testing.T) {
	svc := newTestService(newFakeSwipeStore(), newFakeMatchStore(), newFakeUserStore(), &fakePublisher{})
	ctx := context.Background()

	if _, err := svc.RecordSwipe(ctx, 42, 42, "LIKE"); !errors.Is(err, ErrValidation) {
		t.Fatalf("self swipe must fail validation, got %v", err)
	}
	if _, err := svc.RecordSwipe(ctx, 0, 7, "LIKE"); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero sender must fail validation, got %v", err)
	}
	if _, err := svc.RecordSwipe(ctx, 42, 7, "WINK"); !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("unknown action must be rejected, got %v", err)
	}
}

func TestStoreFailureSurfacesError(t *testing.T) {
	swipeStore := newFakeSwipeStore()
	swipeStore.failing = true
	pub := &fakePublisher{}
	svc := newTestService(swipeStore, newFakeMatchStore(), newFakeUserStore(), pub)

	result, err := svc.RecordSwipe(context.Background(), 42, 7, "LIKE")
	if err == nil {
		t.Fatalf("expected store failure to surface")
	}
	if result.Success {
		t.Fatalf("failed write must not report success")
	}
	if len(pub.events) != 0 {
		t.Fatalf("no events on failure, got %+v", pub.events)
	}
}

func TestGetSwipePointRead(t *testing.T) {
	swipeStore := newFakeSwipeStore()
	svc := newTestService(swipeStore, newFakeMatchStore(), newFakeUserStore(), &fakePublisher{})
	ctx := context.Background()

	if _, err := svc.GetSwipe(ctx, 42, 7); !errors.Is(err, ErrSwipeNotFound) {
		t.Fatalf("expected not-found before any swipe, got %v", err)
	}

	if _, err := svc.RecordSwipe(ctx, 42, 7, "LIKE"); err != nil {
		t.Fatalf("record swipe: %v", err)
	}

	rec, err := svc.GetSwipe(ctx, 42, 7)
	if err != nil {
		t.Fatalf("get swipe: %v", err)
	}
	if rec.Action != "LIKE" || rec.SenderID != 42 || rec.ReceiverID != 7 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// Reverse direction is a distinct key.
	if _, err := svc.GetSwipe(ctx, 7, 42); !errors.Is(err, ErrSwipeNotFound) {
		t.Fatalf("reverse pair must be absent, got %v", err)
	}
}
