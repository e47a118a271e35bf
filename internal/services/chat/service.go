package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/emberlabs/ember/backend/internal/domain/model"
	"github.com/emberlabs/ember/backend/internal/domain/rules"
	pgrepo "github.com/emberlabs/ember/backend/internal/repo/postgres"
	redisrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("user is not a participant of the match")
	ErrMatchInactive  = errors.New("match is no longer active")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
)

type MessageStore interface {
	Append(ctx context.Context, matchID string, senderID int64, text string, now time.Time) (pgrepo.MessageRecord, error)
	ListByMatch(ctx context.Context, matchID string, limit int) ([]pgrepo.MessageRecord, error)
	MarkRead(ctx context.Context, matchID string, userID int64) (int64, error)
	ExistsFromOtherSince(ctx context.Context, matchID string, userID int64, since *time.Time) (bool, error)
}

type MatchStore interface {
	Get(ctx context.Context, matchID string) (pgrepo.MatchRecord, error)
	SetLastMessage(ctx context.Context, matchID, text string, at time.Time) error
	ListActiveForUser(ctx context.Context, userID int64, limit int) ([]pgrepo.ConversationRecord, error)
	StampViewed(ctx context.Context, matchID string, userID int64, at time.Time) error
	StampRead(ctx context.Context, matchID string, userID int64, at time.Time) error
	GetViewedAt(ctx context.Context, matchID string, userID int64) (*time.Time, error)
}

type TypingStore interface {
	Set(ctx context.Context, matchID string, userID int64, at time.Time, window time.Duration) error
	Delete(ctx context.Context, matchID string, userID int64) error
	List(ctx context.Context, matchID string) ([]redisrepo.TypingRecord, error)
}

// EventBus carries per-match change notifications. Events are pokes,
// not payloads: every subscriber re-reads the state it cares about.
type EventBus interface {
	Publish(ctx context.Context, event redisrepo.Event) error
	Subscribe(ctx context.Context, matchID string) (<-chan redisrepo.Event, func(), error)
}

type Config struct {
	TypingWindow    time.Duration
	MaxMessageChars int
	PageLimit       int
}

type Dependencies struct {
	Messages MessageStore
	Matches  MatchStore
	Typing   TypingStore
	Events   EventBus
	Logger   *zap.Logger
}

// Conversation is a match joined with the caller's unread state.
type Conversation struct {
	model.Match
	OtherUserID int64 `json:"other_user_id"`
	HasUnread   bool  `json:"has_unread"`
}

type Service struct {
	messages MessageStore
	matches  MatchStore
	typing   TypingStore
	events   EventBus
	logger   *zap.Logger
	cfg      Config

	now func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = rules.TypingStaleAfter
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = 2000
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 200
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		messages: deps.Messages,
		matches:  deps.Matches,
		typing:   deps.Typing,
		events:   deps.Events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SendMessage appends a message and bumps the match preview. The preview
// write is separate from the insert; a crash between the two leaves the
// message intact and only the preview stale.
func (s *Service) SendMessage(ctx context.Context, userID int64, matchID, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageChars {
		return model.Message{}, ErrMessageTooLong
	}

	match, err := s.authorize(ctx, userID, matchID)
	if err != nil {
		return model.Message{}, err
	}
	if !match.IsActive {
		return model.Message{}, ErrMatchInactive
	}

	now := s.now().UTC()
	rec, err := s.messages.Append(ctx, matchID, userID, text, now)
	if err != nil {
		return model.Message{}, fmt.Errorf("append message: %w", err)
	}

	if err := s.matches.SetLastMessage(ctx, matchID, text, rec.CreatedAt); err != nil {
		s.logger.Warn("update last message preview failed",
			zap.String("match_id", matchID),
			zap.Error(err),
		)
	}

	s.publish(ctx, redisrepo.Event{
		Kind:    redisrepo.EventMessageAppended,
		MatchID: matchID,
		UserID:  userID,
		At:      rec.CreatedAt,
	})

	return messageToModel(rec), nil
}

// ListMessages returns the conversation oldest first.
func (s *Service) ListMessages(ctx context.Context, userID int64, matchID string) ([]model.Message, error) {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return nil, err
	}
	return s.listMessages(ctx, matchID)
}

func (s *Service) listMessages(ctx context.Context, matchID string) ([]model.Message, error) {
	records, err := s.messages.ListByMatch(ctx, matchID, s.cfg.PageLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	items := make([]model.Message, 0, len(records))
	for _, rec := range records {
		items = append(items, messageToModel(rec))
	}
	return items, nil
}

// SubscribeToMessages delivers the full current message list on every
// change. The first delivery is immediate; each subsequent event causes
// a re-read rather than an incremental patch, so a dropped event costs
// at most one stale render.
func (s *Service) SubscribeToMessages(ctx context.Context, userID int64, matchID string) (<-chan []model.Message, func(), error) {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return nil, nil, err
	}

	events, cancel, err := s.events.Subscribe(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to match %s: %w", matchID, err)
	}

	out := make(chan []model.Message, 1)
	go func() {
		defer close(out)
		defer cancel()

		s.deliverMessages(ctx, matchID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Kind != redisrepo.EventMessageAppended && event.Kind != redisrepo.EventMessagesRead {
					continue
				}
				s.deliverMessages(ctx, matchID, out)
			}
		}
	}()

	return out, cancel, nil
}

// deliverMessages pushes the current full list. A failed read delivers
// an empty list so the listener renders a consistent empty state instead
// of hanging on stale data.
func (s *Service) deliverMessages(ctx context.Context, matchID string, out chan<- []model.Message) {
	items, err := s.listMessages(ctx, matchID)
	if err != nil {
		s.logger.Warn("message snapshot failed", zap.String("match_id", matchID), zap.Error(err))
		items = []model.Message{}
	}
	select {
	case out <- items:
	case <-ctx.Done():
	}
}

// MarkMessagesAsRead adds the reader to read_by on every message from
// the other participant in one statement, so concurrent readers and
// writers cannot lose the update.
func (s *Service) MarkMessagesAsRead(ctx context.Context, userID int64, matchID string) error {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return err
	}

	now := s.now().UTC()
	affected, err := s.messages.MarkRead(ctx, matchID, userID)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	if err := s.matches.StampRead(ctx, matchID, userID, now); err != nil {
		s.logger.Warn("stamp read failed", zap.String("match_id", matchID), zap.Error(err))
	}

	if affected > 0 {
		s.publish(ctx, redisrepo.Event{
			Kind:    redisrepo.EventMessagesRead,
			MatchID: matchID,
			UserID:  userID,
			At:      now,
		})
	}
	return nil
}

// UnreadCount counts messages from other senders the user has not read.
func UnreadCount(messages []model.Message, userID int64) int {
	count := 0
	for _, msg := range messages {
		if msg.SenderID == userID {
			continue
		}
		if !msg.ReadByUser(userID) {
			count++
		}
	}
	return count
}

// MarkConversationAsViewed stamps the user's last-viewed time, which
// drives the conversation-level unread badge.
func (s *Service) MarkConversationAsViewed(ctx context.Context, userID int64, matchID string) error {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return err
	}
	if err := s.matches.StampViewed(ctx, matchID, userID, s.now().UTC()); err != nil {
		return fmt.Errorf("stamp viewed: %w", err)
	}
	return nil
}

// ConversationHasUnread reports whether the other participant wrote
// anything after the user last viewed the conversation. A never-viewed
// conversation with any foreign message counts as unread.
func (s *Service) ConversationHasUnread(ctx context.Context, userID int64, matchID string) (bool, error) {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return false, err
	}

	viewedAt, err := s.matches.GetViewedAt(ctx, matchID, userID)
	if err != nil {
		return false, fmt.Errorf("get viewed at: %w", err)
	}
	unread, err := s.messages.ExistsFromOtherSince(ctx, matchID, userID, viewedAt)
	if err != nil {
		return false, fmt.Errorf("check unread: %w", err)
	}
	return unread, nil
}

// ListConversations returns the user's active matches with unread state,
// most recent activity first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id %d", ErrValidation, userID)
	}

	records, err := s.matches.ListActiveForUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %d: %w", userID, err)
	}

	items := make([]Conversation, 0, len(records))
	for _, rec := range records {
		match := matchToModel(rec.MatchRecord)
		unread, err := s.messages.ExistsFromOtherSince(ctx, rec.ID, userID, rec.LastViewedAt)
		if err != nil {
			return nil, fmt.Errorf("check unread for %s: %w", rec.ID, err)
		}
		items = append(items, Conversation{
			Match:       match,
			OtherUserID: match.OtherUser(userID),
			HasUnread:   unread,
		})
	}
	return items, nil
}

// SetTypingStatus records or clears the user's typing flag. Timestamps
// are stamped here, never trusted from the client, so skewed devices
// cannot produce indicators that outlive the staleness window.
func (s *Service) SetTypingStatus(ctx context.Context, userID int64, matchID string, isTyping bool) error {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return err
	}

	now := s.now().UTC()
	if isTyping {
		err := s.typing.Set(ctx, matchID, userID, now, s.cfg.TypingWindow)
		if err != nil {
			return fmt.Errorf("set typing: %w", err)
		}
	} else {
		if err := s.typing.Delete(ctx, matchID, userID); err != nil {
			return fmt.Errorf("clear typing: %w", err)
		}
	}

	s.publish(ctx, redisrepo.Event{
		Kind:    redisrepo.EventTypingChanged,
		MatchID: matchID,
		UserID:  userID,
		At:      now,
	})
	return nil
}

// ClearTypingStatus drops the user's typing flag without an authorize
// round trip. Used on disconnect, where the session was already checked.
func (s *Service) ClearTypingStatus(ctx context.Context, userID int64, matchID string) {
	if err := s.typing.Delete(ctx, matchID, userID); err != nil {
		s.logger.Warn("clear typing failed",
			zap.String("match_id", matchID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}
	s.publish(ctx, redisrepo.Event{
		Kind:    redisrepo.EventTypingChanged,
		MatchID: matchID,
		UserID:  userID,
		At:      s.now().UTC(),
	})
}

// TypingUsers returns the other participants currently typing. Staleness
// is enforced at read time against the server clock; entries older than
// the window are invisible even if their keys still exist.
func (s *Service) TypingUsers(ctx context.Context, userID int64, matchID string) ([]int64, error) {
	records, err := s.typing.List(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}
	return s.filterTyping(records, userID), nil
}

func (s *Service) filterTyping(records []redisrepo.TypingRecord, userID int64) []int64 {
	cutoff := s.now().UTC().Add(-s.cfg.TypingWindow)
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		if rec.UserID == userID {
			continue
		}
		// An indicator aged exactly the window is already stale.
		if !rec.Timestamp.After(cutoff) {
			continue
		}
		ids = append(ids, rec.UserID)
	}
	return ids
}

// SubscribeToTypingStatus delivers the set of other users typing, first
// immediately and then on every typing change.
func (s *Service) SubscribeToTypingStatus(ctx context.Context, userID int64, matchID string) (<-chan []int64, func(), error) {
	if _, err := s.authorize(ctx, userID, matchID); err != nil {
		return nil, nil, err
	}

	events, cancel, err := s.events.Subscribe(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to match %s: %w", matchID, err)
	}

	out := make(chan []int64, 1)
	go func() {
		defer close(out)
		defer cancel()

		s.deliverTyping(ctx, userID, matchID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Kind != redisrepo.EventTypingChanged {
					continue
				}
				s.deliverTyping(ctx, userID, matchID, out)
			}
		}
	}()

	return out, cancel, nil
}

func (s *Service) deliverTyping(ctx context.Context, userID int64, matchID string, out chan<- []int64) {
	ids, err := s.TypingUsers(ctx, userID, matchID)
	if err != nil {
		s.logger.Warn("typing snapshot failed", zap.String("match_id", matchID), zap.Error(err))
		ids = []int64{}
	}
	select {
	case out <- ids:
	case <-ctx.Done():
	}
}

func (s *Service) publish(ctx context.Context, event redisrepo.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("kind", event.Kind),
			zap.String("match_id", event.MatchID),
			zap.Error(err),
		)
	}
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

	match := matchToModel(rec)
	if !match.HasParticipant(userID) {
		return model.Match{}, ErrNotParticipant
	}
	return match, nil
}

func matchToModel(rec pgrepo.MatchRecord) model.Match {
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

func messageToModel(rec pgrepo.MessageRecord) model.Message {
	return model.Message{
		ID:        rec.ID,
		MatchID:   rec.MatchID,
		SenderID:  rec.SenderID,
		Text:      rec.Text,
		ReadBy:    rec.ReadBy,
		CreatedAt: rec.CreatedAt,
	}
}
