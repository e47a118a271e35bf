package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSwipeNotFound = errors.New("swipe not found")

type SwipeRepo struct {
	pool *pgxpool.Pool
}

func NewSwipeRepo(pool *pgxpool.Pool) *SwipeRepo {
	return &SwipeRepo{pool: pool}
}

type SwipeRecord struct {
	SenderID   int64
	ReceiverID int64
	Action     string
	CreatedAt  time.Time
}

// Upsert writes the swipe at its ordered-pair key. A second write for the
// same (sender, receiver) overwrites the previous decision; the pair never
// produces more than one row. The returned flag is true when the row was
// newly inserted rather than overwritten.
func (r *SwipeRepo) Upsert(ctx context.Context, tx pgx.Tx, senderID, receiverID int64, action string, now time.Time) (SwipeRecord, bool, error) {
	if senderID <= 0 || receiverID <= 0 || strings.TrimSpace(action) == "" {
		return SwipeRecord{}, false, fmt.Errorf("invalid swipe payload")
	}
	if tx == nil {
		return SwipeRecord{}, false, fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var rec SwipeRecord
	var inserted bool
	err := tx.QueryRow(ctx, `
INSERT INTO swipes (
	sender_id,
	receiver_id,
	action,
	created_at
) VALUES ($1, $2, $3, $4)
ON CONFLICT (sender_id, receiver_id) DO UPDATE SET
	action = EXCLUDED.action,
	created_at = EXCLUDED.created_at
RETURNING sender_id, receiver_id, action, created_at, (xmax = 0)
`, senderID, receiverID, strings.ToUpper(strings.TrimSpace(action)), now.UTC()).Scan(
		&rec.SenderID,
		&rec.ReceiverID,
		&rec.Action,
		&rec.CreatedAt,
		&inserted,
	)
	if err != nil {
		return SwipeRecord{}, false, fmt.Errorf("upsert swipe: %w", err)
	}

	return rec, inserted, nil
}

// Get is the point read for one ordered pair. The reverse direction is a
// separate key.
func (r *SwipeRepo) Get(ctx context.Context, senderID, receiverID int64) (SwipeRecord, error) {
	if senderID <= 0 || receiverID <= 0 {
		return SwipeRecord{}, fmt.Errorf("invalid swipe lookup")
	}
	if r.pool == nil {
		return SwipeRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var rec SwipeRecord
	err := r.pool.QueryRow(ctx, `
SELECT sender_id, receiver_id, action, created_at
FROM swipes
WHERE sender_id = $1 AND receiver_id = $2
`, senderID, receiverID).Scan(
		&rec.SenderID,
		&rec.ReceiverID,
		&rec.Action,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SwipeRecord{}, ErrSwipeNotFound
		}
		return SwipeRecord{}, fmt.Errorf("get swipe: %w", err)
	}

	return rec, nil
}

// GetReverse reads the opposite direction of the pair inside the same
// transaction as the triggering write, so mutual-like detection sees the
// latest committed state.
func (r *SwipeRepo) GetReverse(ctx context.Context, tx pgx.Tx, senderID, receiverID int64) (SwipeRecord, error) {
	if senderID <= 0 || receiverID <= 0 {
		return SwipeRecord{}, fmt.Errorf("invalid swipe lookup")
	}
	if tx == nil {
		return SwipeRecord{}, fmt.Errorf("transaction is required")
	}

	var rec SwipeRecord
	err := tx.QueryRow(ctx, `
SELECT sender_id, receiver_id, action, created_at
FROM swipes
WHERE sender_id = $1 AND receiver_id = $2
`, receiverID, senderID).Scan(
		&rec.SenderID,
		&rec.ReceiverID,
		&rec.Action,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SwipeRecord{}, ErrSwipeNotFound
		}
		return SwipeRecord{}, fmt.Errorf("get reverse swipe: %w", err)
	}

	return rec, nil
}

// ListTargetsBySender returns every receiver the sender has already
// decided on, used to exclude seen profiles from candidate discovery.
func (r *SwipeRepo) ListTargetsBySender(ctx context.Context, senderID int64) ([]int64, error) {
	if senderID <= 0 {
		return nil, fmt.Errorf("invalid sender id")
	}
	if r.pool == nil {
		return []int64{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT receiver_id
FROM swipes
WHERE sender_id = $1
`, senderID)
	if err != nil {
		return nil, fmt.Errorf("list swipe targets: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, 64)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan swipe target: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate swipe targets: %w", rows.Err())
	}

	return ids, nil
}
