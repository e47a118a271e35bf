package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

type MessageRecord struct {
	ID        uuid.UUID
	MatchID   string
	SenderID  int64
	Text      string
	ReadBy    []int64
	CreatedAt time.Time
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append inserts a new message with the sender pre-seeded into read_by.
func (r *MessageRepo) Append(ctx context.Context, matchID string, senderID int64, text string, now time.Time) (MessageRecord, error) {
	if matchID == "" || senderID <= 0 || strings.TrimSpace(text) == "" {
		return MessageRecord{}, fmt.Errorf("invalid message payload")
	}
	if r.pool == nil {
		return MessageRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var rec MessageRecord
	err := r.pool.QueryRow(ctx, `
INSERT INTO messages (
	id,
	match_id,
	sender_id,
	text,
	read_by,
	created_at
) VALUES ($1, $2, $3, $4, ARRAY[$3]::bigint[], $5)
RETURNING id, match_id, sender_id, text, read_by, created_at
`, uuid.New(), matchID, senderID, text, now.UTC()).Scan(
		&rec.ID,
		&rec.MatchID,
		&rec.SenderID,
		&rec.Text,
		&rec.ReadBy,
		&rec.CreatedAt,
	)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("append message: %w", err)
	}

	return rec, nil
}

// ListByMatch returns the full conversation in created_at ascending
// order. Subscribers re-receive this whole list on every change.
func (r *MessageRepo) ListByMatch(ctx context.Context, matchID string, limit int) ([]MessageRecord, error) {
	if matchID == "" {
		return nil, fmt.Errorf("match id is required")
	}
	if limit <= 0 {
		limit = 200
	}
	if r.pool == nil {
		return []MessageRecord{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, match_id, sender_id, text, read_by, created_at
FROM messages
WHERE match_id = $1
ORDER BY created_at ASC, id ASC
LIMIT $2
`, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]MessageRecord, 0, 32)
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MatchID,
			&rec.SenderID,
			&rec.Text,
			&rec.ReadBy,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate messages: %w", rows.Err())
	}

	return items, nil
}

// MarkRead unions the reader into read_by for every message in the match
// they did not author and have not read yet. The union happens in a single
// statement, so read_by only ever grows and concurrent readers cannot
// clobber each other's receipts.
func (r *MessageRepo) MarkRead(ctx context.Context, matchID string, userID int64) (int64, error) {
	if matchID == "" || userID <= 0 {
		return 0, fmt.Errorf("invalid mark-read payload")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	result, err := r.pool.Exec(ctx, `
UPDATE messages
SET read_by = read_by || $2::bigint
WHERE match_id = $1
	AND sender_id <> $2
	AND NOT (read_by @> ARRAY[$2]::bigint[])
`, matchID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	return result.RowsAffected(), nil
}

// ExistsFromOtherSince reports whether the other participant has sent
// anything after the given stamp; a nil stamp means "never viewed".
func (r *MessageRepo) ExistsFromOtherSince(ctx context.Context, matchID string, userID int64, since *time.Time) (bool, error) {
	if matchID == "" || userID <= 0 {
		return false, fmt.Errorf("invalid conversation unread lookup")
	}
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM messages
	WHERE match_id = $1
		AND sender_id <> $2
		AND ($3::timestamptz IS NULL OR created_at > $3)
)
`, matchID, userID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation unread: %w", err)
	}

	return exists, nil
}
