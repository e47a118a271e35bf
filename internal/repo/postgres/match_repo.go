package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberlabs/ember/backend/internal/domain/rules"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepo struct {
	pool *pgxpool.Pool
}

type MatchRecord struct {
	ID              string
	UserAID         int64
	UserBID         int64
	IsActive        bool
	LastMessage     string
	LastMessageTime *time.Time
	CreatedAt       time.Time
}

type ConversationRecord struct {
	MatchRecord
	LastViewedAt *time.Time
	LastReadAt   *time.Time
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

// Upsert writes the match at its canonical sorted-pair id. Both racing
// writers of a near-simultaneous mutual like target the same row; the
// returned flag is true only for the writer whose insert actually landed,
// which is the hook for once-only match side effects.
func (r *MatchRepo) Upsert(ctx context.Context, tx pgx.Tx, userID, targetID int64, now time.Time) (MatchRecord, bool, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return MatchRecord{}, false, fmt.Errorf("invalid match payload")
	}
	if tx == nil {
		return MatchRecord{}, false, fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userA, userB := rules.SortPair(userID, targetID)
	matchID := rules.MatchKey(userID, targetID)

	var rec MatchRecord
	var inserted bool
	err := tx.QueryRow(ctx, `
INSERT INTO matches (
	id,
	user_a_id,
	user_b_id,
	is_active,
	created_at
) VALUES ($1, $2, $3, TRUE, $4)
ON CONFLICT (id) DO UPDATE SET is_active = TRUE
RETURNING id, user_a_id, user_b_id, is_active, COALESCE(last_message, ''), last_message_time, created_at, (xmax = 0)
`, matchID, userA, userB, now.UTC()).Scan(
		&rec.ID,
		&rec.UserAID,
		&rec.UserBID,
		&rec.IsActive,
		&rec.LastMessage,
		&rec.LastMessageTime,
		&rec.CreatedAt,
		&inserted,
	)
	if err != nil {
		return MatchRecord{}, false, fmt.Errorf("upsert match: %w", err)
	}

	return rec, inserted, nil
}

func (r *MatchRepo) Get(ctx context.Context, matchID string) (MatchRecord, error) {
	if matchID == "" {
		return MatchRecord{}, fmt.Errorf("match id is required")
	}
	if r.pool == nil {
		return MatchRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var rec MatchRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, user_a_id, user_b_id, is_active, COALESCE(last_message, ''), last_message_time, created_at
FROM matches
WHERE id = $1
`, matchID).Scan(
		&rec.ID,
		&rec.UserAID,
		&rec.UserBID,
		&rec.IsActive,
		&rec.LastMessage,
		&rec.LastMessageTime,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, ErrMatchNotFound
		}
		return MatchRecord{}, fmt.Errorf("get match: %w", err)
	}

	return rec, nil
}

// SetLastMessage refreshes the conversation preview. Runs outside the
// message insert on purpose: a failure here leaves the message in place
// and only the preview briefly stale.
func (r *MatchRepo) SetLastMessage(ctx context.Context, matchID, text string, at time.Time) error {
	if matchID == "" {
		return fmt.Errorf("match id is required")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	result, err := r.pool.Exec(ctx, `
UPDATE matches
SET last_message = $2, last_message_time = $3
WHERE id = $1
`, matchID, text, at.UTC())
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func (r *MatchRepo) Deactivate(ctx context.Context, matchID string) (bool, error) {
	if matchID == "" {
		return false, fmt.Errorf("match id is required")
	}
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	result, err := r.pool.Exec(ctx, `
UPDATE matches
SET is_active = FALSE
WHERE id = $1 AND is_active
`, matchID)
	if err != nil {
		return false, fmt.Errorf("deactivate match: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListActiveForUser returns the user's conversations newest-activity
// first, carrying the per-user view/read stamps alongside the preview.
func (r *MatchRepo) ListActiveForUser(ctx context.Context, userID int64, limit int) ([]ConversationRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 {
		limit = 100
	}
	if r.pool == nil {
		return []ConversationRecord{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	m.id,
	m.user_a_id,
	m.user_b_id,
	m.is_active,
	COALESCE(m.last_message, ''),
	m.last_message_time,
	m.created_at,
	v.viewed_at,
	v.read_at
FROM matches m
LEFT JOIN match_views v ON v.match_id = m.id AND v.user_id = $1
WHERE (m.user_a_id = $1 OR m.user_b_id = $1) AND m.is_active
ORDER BY COALESCE(m.last_message_time, m.created_at) DESC, m.id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	defer rows.Close()

	items := make([]ConversationRecord, 0, limit)
	for rows.Next() {
		var item ConversationRecord
		if err := rows.Scan(
			&item.ID,
			&item.UserAID,
			&item.UserBID,
			&item.IsActive,
			&item.LastMessage,
			&item.LastMessageTime,
			&item.CreatedAt,
			&item.LastViewedAt,
			&item.LastReadAt,
		); err != nil {
			return nil, fmt.Errorf("scan active match: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate active matches: %w", rows.Err())
	}

	return items, nil
}

// StampViewed records the coarse per-user conversation view timestamp.
func (r *MatchRepo) StampViewed(ctx context.Context, matchID string, userID int64, at time.Time) error {
	return r.stamp(ctx, matchID, userID, at, "viewed_at")
}

// StampRead records the legacy per-match read timestamp kept for
// backward compatibility with per-message receipts.
func (r *MatchRepo) StampRead(ctx context.Context, matchID string, userID int64, at time.Time) error {
	return r.stamp(ctx, matchID, userID, at, "read_at")
}

func (r *MatchRepo) stamp(ctx context.Context, matchID string, userID int64, at time.Time, column string) error {
	if matchID == "" || userID <= 0 {
		return fmt.Errorf("invalid view stamp payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	query := fmt.Sprintf(`
INSERT INTO match_views (match_id, user_id, %[1]s)
VALUES ($1, $2, $3)
ON CONFLICT (match_id, user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s
`, column)
	if _, err := r.pool.Exec(ctx, query, matchID, userID, at.UTC()); err != nil {
		return fmt.Errorf("stamp match %s: %w", column, err)
	}
	return nil
}

// GetViewedAt returns the user's last-viewed stamp, nil when the
// conversation was never opened.
func (r *MatchRepo) GetViewedAt(ctx context.Context, matchID string, userID int64) (*time.Time, error) {
	if matchID == "" || userID <= 0 {
		return nil, fmt.Errorf("invalid view stamp lookup")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	var viewedAt *time.Time
	err := r.pool.QueryRow(ctx, `
SELECT viewed_at
FROM match_views
WHERE match_id = $1 AND user_id = $2
`, matchID, userID).Scan(&viewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get viewed stamp: %w", err)
	}
	return viewedAt, nil
}
