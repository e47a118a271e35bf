package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emberlabs/ember/backend/internal/domain/model"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	redisrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []pgrepo.MessageRecord
	failList bool
}

func (f *fakeMessageStore) Append(_ context.Context, matchID string, senderID int64, text string, now time.Time) (pgrepo.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := pgrepo.MessageRecord{
		ID:        uuid.New(),
		MatchID:   matchID,
		SenderID:  senderID,
		Text:      text,
		ReadBy:    []int64{senderID},
		CreatedAt: now,
	}
	f.messages = append(f.messages, rec)
	return rec, nil
}

func (f *fakeMessageStore) ListByMatch(_ context.Context, matchID string, _ int) ([]pgrepo.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("db down")
	}
	var out []pgrepo.MessageRecord
	for _, rec := range f.messages {
		if rec.MatchID == matchID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, matchID string, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	for i, rec := range f.messages {
		if rec.MatchID != matchID || rec.SenderID == userID {
			continue
		}
		already := false
		for _, id := range rec.ReadBy {
			if id == userID {
				already = true
			}
		}
		if already {
			continue
		}
		f.messages[i].ReadBy = append(rec.ReadBy, userID)
		affected++
	}
	return affected, nil
}

func (f *fakeMessageStore) ExistsFromOtherSince(_ context.Context, matchID string, userID int64, since *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.messages {
		if rec.MatchID != matchID || rec.SenderID == userID {
			continue
		}
		if since == nil || rec.CreatedAt.After(*since) {
			return true, nil
		}
	}
	return false, nil
}

type fakeMatchStore struct {
	mu       sync.Mutex
	records  map[string]pgrepo.MatchRecord
	previews map[string]string
	viewed   map[string]*time.Time
	read     map[string]*time.Time
}

func newFakeMatchStore(records ...pgrepo.MatchRecord) *fakeMatchStore {
	f := &fakeMatchStore{
		records:  map[string]pgrepo.MatchRecord{},
		previews: map[string]string{},
		viewed:   map[string]*time.Time{},
		read:     map[string]*time.Time{},
	}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return f
}

func (f *fakeMatchStore) Get(_ context.Context, matchID string) (pgrepo.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[matchID]
	if !ok {
		return pgrepo.MatchRecord{}, pgrepo.ErrMatchNotFound
	}
	return rec, nil
}

func (f *fakeMatchStore) SetLastMessage(_ context.Context, matchID, text string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews[matchID] = text
	return nil
}

func (f *fakeMatchStore) ListActiveForUser(_ context.Context, userID int64, _ int) ([]pgrepo.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pgrepo.ConversationRecord
	for _, rec := range f.records {
		if rec.IsActive && (rec.UserAID == userID || rec.UserBID == userID) {
			out = append(out, pgrepo.ConversationRecord{
				MatchRecord:  rec,
				LastViewedAt: f.viewed[stampKey(rec.ID, userID)],
			})
		}
	}
	return out, nil
}

func (f *fakeMatchStore) StampViewed(_ context.Context, matchID string, userID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed[stampKey(matchID, userID)] = &at
	return nil
}

func (f *fakeMatchStore) StampRead(_ context.Context, matchID string, userID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read[stampKey(matchID, userID)] = &at
	return nil
}

func (f *fakeMatchStore) GetViewedAt(_ context.Context, matchID string, userID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewed[stampKey(matchID, userID)], nil
}

func stampKey(matchID string, userID int64) string {
	return fmt.Sprintf("%s:%d", matchID, userID)
}

type fakeTypingStore struct {
	mu      sync.Mutex
	records map[string][]redisrepo.TypingRecord
}

func newFakeTypingStore() *fakeTypingStore {
	return &fakeTypingStore{records: map[string][]redisrepo.TypingRecord{}}
}

func (f *fakeTypingStore) Set(_ context.Context, matchID string, userID int64, at time.Time, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLocked(matchID, userID)
	f.records[matchID] = append(f.records[matchID], redisrepo.TypingRecord{UserID: userID, Timestamp: at})
	return nil
}

func (f *fakeTypingStore) Delete(_ context.Context, matchID string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLocked(matchID, userID)
	return nil
}

func (f *fakeTypingStore) deleteLocked(matchID string, userID int64) {
	out := f.records[matchID][:0]
	for _, rec := range f.records[matchID] {
		if rec.UserID != userID {
			out = append(out, rec)
		}
	}
	f.records[matchID] = out
}

func (f *fakeTypingStore) List(_ context.Context, matchID string) ([]redisrepo.TypingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redisrepo.TypingRecord(nil), f.records[matchID]...), nil
}

// fakeEventBus delivers published events to all open subscriptions.
type fakeEventBus struct {
	mu        sync.Mutex
	published []redisrepo.Event
	subs      map[string][]chan redisrepo.Event
}

func newFakeEventBus() *fakeEventBus {
	return &fakeEventBus{subs: map[string][]chan redisrepo.Event{}}
}

func (f *fakeEventBus) Publish(_ context.Context, event redisrepo.Event) error {
	f.mu.Lock()
	f.published = append(f.published, event)
	subs := append([]chan redisrepo.Event(nil), f.subs[event.MatchID]...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- event
	}
	return nil
}

func (f *fakeEventBus) Subscribe(_ context.Context, matchID string) (<-chan redisrepo.Event, func(), error) {
	ch := make(chan redisrepo.Event, 16)
	f.mu.Lock()
	f.subs[matchID] = append(f.subs[matchID], ch)
	f.mu.Unlock()
	return ch, func() {}, nil
}

func (f *fakeEventBus) events() []redisrepo.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redisrepo.Event(nil), f.published...)
}

func activeMatch(id string, a, b int64) pgrepo.MatchRecord {
	return pgrepo.MatchRecord{ID: id, UserAID: a, UserBID: b, IsActive: true, CreatedAt: testNow}
}

type testEnv struct {
	svc      *Service
	messages *fakeMessageStore
	matches  *fakeMatchStore
	typing   *fakeTypingStore
	bus      *fakeEventBus
}

func newTestEnv(records ...pgrepo.MatchRecord) *testEnv {
	env := &testEnv{
		messages: &fakeMessageStore{},
		matches:  newFakeMatchStore(records...),
		typing:   newFakeTypingStore(),
		bus:      newFakeEventBus(),
	}
	env.svc = NewService(Dependencies{
		Messages: env.messages,
		Matches:  env.matches,
		Typing:   env.typing,
		Events:   env.bus,
	}, Config{TypingWindow: 5 * time.Second, MaxMessageChars: 100, PageLimit: 200})
	env.svc.now = func() time.Time { return testNow }
	return env
}

func TestSendMessageAppendsAndBumpsPreview(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))

	msg, err := env.svc.SendMessage(context.Background(), 1, "1_2", "  hey there  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Text != "hey there" {
		t.Fatalf("text not trimmed: %q", msg.Text)
	}
	if !msg.ReadByUser(1) {
		t.Fatal("sender must be pre-seeded into read_by")
	}
	if env.matches.previews["1_2"] != "hey there" {
		t.Fatalf("preview not updated: %q", env.matches.previews["1_2"])
	}

	events := env.bus.events()
	if len(events) != 1 || events[0].Kind != redisrepo.EventMessageAppended {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(
		activeMatch("1_2", 1, 2),
		pgrepo.MatchRecord{ID: "3_4", UserAID: 3, UserBID: 4, IsActive: false},
	)
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, 1, "1_2", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, 1, "1_2", strings.Repeat("x", 101)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, 9, "1_2", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, 3, "3_4", "hi"); !errors.Is(err, ErrMatchInactive) {
		t.Fatalf("expected ErrMatchInactive, got %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, 1, "9_9", "hi"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestMarkMessagesAsRead(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, 2, "1_2", "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, 2, "1_2", "second"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := env.svc.MarkMessagesAsRead(ctx, 1, "1_2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	msgs, err := env.svc.ListMessages(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, msg := range msgs {
		if !msg.ReadByUser(1) || !msg.ReadByUser(2) {
			t.Fatalf("message %s missing readers: %v", msg.ID, msg.ReadBy)
		}
	}

	var readEvents int
	for _, event := range env.bus.events() {
		if event.Kind == redisrepo.EventMessagesRead {
			readEvents++
		}
	}
	if readEvents != 1 {
		t.Fatalf("expected one read event, got %d", readEvents)
	}

	// Nothing newly read: no second event.
	if err := env.svc.MarkMessagesAsRead(ctx, 1, "1_2"); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	readEvents = 0
	for _, event := range env.bus.events() {
		if event.Kind == redisrepo.EventMessagesRead {
			readEvents++
		}
	}
	if readEvents != 1 {
		t.Fatalf("idempotent mark read must not re-publish, got %d events", readEvents)
	}
}

func TestUnreadCount(t *testing.T) {
	msgs := []model.Message{
		{SenderID: 2, ReadBy: []int64{2}},
		{SenderID: 2, ReadBy: []int64{2, 1}},
		{SenderID: 1, ReadBy: []int64{1}},
	}
	if got := UnreadCount(msgs, 1); got != 1 {
		t.Fatalf("unread for 1: got %d want 1", got)
	}
	if got := UnreadCount(msgs, 2); got != 1 {
		t.Fatalf("unread for 2: got %d want 1", got)
	}
	if got := UnreadCount(nil, 1); got != 0 {
		t.Fatalf("unread of empty: got %d", got)
	}
}

func TestTypingStalenessFilteredAtReadTime(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx := context.Background()

	fresh := testNow.Add(-2 * time.Second)
	stale := testNow.Add(-6 * time.Second)
	env.typing.records["1_2"] = []redisrepo.TypingRecord{
		{UserID: 2, Timestamp: fresh},
		{UserID: 3, Timestamp: stale},
		{UserID: 1, Timestamp: fresh},
	}

	ids, err := env.svc.TypingUsers(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected only fresh other user, got %v", ids)
	}
}

func TestTypingIndicatorAgedExactlyWindowIsStale(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx := context.Background()

	// The window is exclusive: an indicator aged exactly 5s is gone.
	env.typing.records["1_2"] = []redisrepo.TypingRecord{
		{UserID: 2, Timestamp: testNow.Add(-5 * time.Second)},
	}

	ids, err := env.svc.TypingUsers(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("typing users: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("indicator at the window boundary must be invisible, got %v", ids)
	}
}

func TestSetTypingStatusStampsServerTime(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx := context.Background()

	if err := env.svc.SetTypingStatus(ctx, 1, "1_2", true); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	recs := env.typing.records["1_2"]
	if len(recs) != 1 || !recs[0].Timestamp.Equal(testNow) {
		t.Fatalf("server timestamp not applied: %+v", recs)
	}

	if err := env.svc.SetTypingStatus(ctx, 1, "1_2", false); err != nil {
		t.Fatalf("clear typing: %v", err)
	}
	if len(env.typing.records["1_2"]) != 0 {
		t.Fatal("typing flag not cleared")
	}

	var typingEvents int
	for _, event := range env.bus.events() {
		if event.Kind == redisrepo.EventTypingChanged {
			typingEvents++
		}
	}
	if typingEvents != 2 {
		t.Fatalf("expected 2 typing events, got %d", typingEvents)
	}
}

func TestSubscribeToMessagesRedeliversFullList(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := env.svc.SendMessage(ctx, 1, "1_2", "first"); err != nil {
		t.Fatalf("send: %v", err)
	}

	updates, stop, err := env.svc.SubscribeToMessages(ctx, 2, "1_2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	initial := <-updates
	if len(initial) != 1 || initial[0].Text != "first" {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	if _, err := env.svc.SendMessage(ctx, 2, "1_2", "second"); err != nil {
		t.Fatalf("send: %v", err)
	}

	next := <-updates
	if len(next) != 2 || next[1].Text != "second" {
		t.Fatalf("expected full re-delivery, got %+v", next)
	}
}

func TestSubscribeDeliversEmptyListOnReadFailure(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.messages.mu.Lock()
	env.messages.failList = true
	env.messages.mu.Unlock()

	updates, stop, err := env.svc.SubscribeToMessages(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	initial := <-updates
	if initial == nil || len(initial) != 0 {
		t.Fatalf("expected empty snapshot on read failure, got %+v", initial)
	}
}

func TestConversationViewedAndUnread(t *testing.T) {
	env := newTestEnv(activeMatch("1_2", 1, 2))
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, 2, "1_2", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	unread, err := env.svc.ConversationHasUnread(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("has unread: %v", err)
	}
	if !unread {
		t.Fatal("never-viewed conversation with a foreign message must be unread")
	}

	// Viewing stamps now, which is after the message.
	if err := env.svc.MarkConversationAsViewed(ctx, 1, "1_2"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	env.svc.now = func() time.Time { return testNow.Add(time.Minute) }
	unread, err = env.svc.ConversationHasUnread(ctx, 1, "1_2")
	if err != nil {
		t.Fatalf("has unread: %v", err)
	}
	if unread {
		t.Fatal("viewed conversation must not be unread")
	}
}

func TestListConversationsCarriesUnreadState(t *testing.T) {
	env := newTestEnv(
		activeMatch("1_2", 1, 2),
		activeMatch("1_3", 1, 3),
	)
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, 2, "1_2", "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	conversations, err := env.svc.ListConversations(ctx, 1)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	byID := map[string]Conversation{}
	for _, c := range conversations {
		byID[c.ID] = c
	}
	if !byID["1_2"].HasUnread {
		t.Fatal("conversation with a foreign message must be unread")
	}
	if byID["1_3"].HasUnread {
		t.Fatal("empty conversation must not be unread")
	}
	if byID["1_2"].OtherUserID != 2 || byID["1_3"].OtherUserID != 3 {
		t.Fatalf("other user not resolved: %+v", conversations)
	}
}
