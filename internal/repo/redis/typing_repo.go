package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const typingPrefix = "typing:"

// TypingRepo stores one typing indicator per (match, user). Keys carry a
// generous TTL as a safety net, but readers never rely on it: staleness is
// decided at read time from the stored server timestamp.
type TypingRepo struct {
	client *goredis.Client
}

type TypingRecord struct {
	UserID    int64
	Timestamp time.Time
}

func NewTypingRepo(client *goredis.Client) *TypingRepo {
	return &TypingRepo{client: client}
}

// Set writes the indicator with a server-assigned timestamp. The TTL is a
// multiple of the staleness window so an abandoned key cannot outlive the
// sweep for long.
func (r *TypingRepo) Set(ctx context.Context, matchID string, userID int64, at time.Time, window time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if matchID == "" || userID <= 0 || window <= 0 {
		return fmt.Errorf("invalid typing payload")
	}

	key := typingKey(matchID, userID)
	if err := r.client.Set(ctx, key, at.UTC().UnixMilli(), 4*window).Err(); err != nil {
		return fmt.Errorf("set typing indicator: %w", err)
	}
	return nil
}

func (r *TypingRepo) Delete(ctx context.Context, matchID string, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if matchID == "" || userID <= 0 {
		return fmt.Errorf("invalid typing payload")
	}

	if err := r.client.Del(ctx, typingKey(matchID, userID)).Err(); err != nil {
		return fmt.Errorf("delete typing indicator: %w", err)
	}
	return nil
}

// List returns every indicator currently stored for the match, stale ones
// included; filtering is the caller's read-side policy.
func (r *TypingRepo) List(ctx context.Context, matchID string) ([]TypingRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if matchID == "" {
		return nil, fmt.Errorf("match id is required")
	}

	pattern := typingPrefix + matchID + ":*"
	records := make([]TypingRecord, 0, 2)

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID, ok := userIDFromTypingKey(key, matchID)
		if !ok {
			continue
		}

		raw, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			return nil, fmt.Errorf("get typing indicator: %w", err)
		}
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Malformed value: skip the entry, never abort the batch.
			continue
		}

		records = append(records, TypingRecord{
			UserID:    userID,
			Timestamp: time.UnixMilli(millis).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan typing indicators: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes indicators whose stored timestamp is at or
// before the cutoff. Housekeeping only; readers filter stale entries
// regardless.
func (r *TypingRepo) DeleteOlderThan(ctx context.Context, matchID string, cutoff time.Time) (int, error) {
	records, err := r.List(ctx, matchID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		if !rec.Timestamp.After(cutoff) {
			if err := r.Delete(ctx, matchID, rec.UserID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// SweepOlderThan walks every typing key and removes those whose stored
// timestamp is at or before the cutoff. Used by the background sweep so
// stale indicators do not accumulate across matches.
func (r *TypingRepo) SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	deleted := 0
	iter := r.client.Scan(ctx, 0, typingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		raw, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			return deleted, fmt.Errorf("get typing indicator: %w", err)
		}
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if time.UnixMilli(millis).UTC().After(cutoff) {
			continue
		}

		if err := r.client.Del(ctx, key).Err(); err != nil {
			return deleted, fmt.Errorf("delete typing indicator: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan typing indicators: %w", err)
	}

	return deleted, nil
}

func typingKey(matchID string, userID int64) string {
	return fmt.Sprintf("%s%s:%d", typingPrefix, matchID, userID)
}

func userIDFromTypingKey(key, matchID string) (int64, bool) {
	suffix := strings.TrimPrefix(key, typingPrefix+matchID+":")
	if suffix == key {
		return 0, false
	}
	userID, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}
