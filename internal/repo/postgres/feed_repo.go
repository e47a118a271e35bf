package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FeedRepo struct {
	pool *pgxpool.Pool
}

type CandidateRecord struct {
	UserID      int64
	DisplayName string
	Gender      string
	Latitude    *float64
	Longitude   *float64
}

type CandidateQuery struct {
	ViewerID    int64
	Genders     []string
	Limit       int
	ExcludeUser []int64
}

func NewFeedRepo(pool *pgxpool.Pool) *FeedRepo {
	return &FeedRepo{pool: pool}
}

// ListCandidates returns active profiles matching the viewer's interest
// set, excluding the viewer, anyone already swiped on and any explicit
// exclusions carried by the query.
func (r *FeedRepo) ListCandidates(ctx context.Context, q CandidateQuery) ([]CandidateRecord, error) {
	if q.ViewerID <= 0 {
		return nil, fmt.Errorf("invalid viewer id")
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if r.pool == nil {
		return []CandidateRecord{}, nil
	}

	exclude := q.ExcludeUser
	if exclude == nil {
		exclude = []int64{}
	}

	rows, err := r.pool.Query(ctx, `
SELECT u.id, u.display_name, u.gender, u.latitude, u.longitude
FROM users u
WHERE u.id <> $1
	AND u.is_active
	AND (cardinality($2::text[]) = 0 OR u.gender = ANY($2::text[]))
	AND u.id <> ALL($3::bigint[])
	AND NOT EXISTS (
		SELECT 1
		FROM swipes s
		WHERE s.sender_id = $1 AND s.receiver_id = u.id
	)
ORDER BY u.updated_at DESC, u.id DESC
LIMIT $4
`, q.ViewerID, q.Genders, exclude, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateRecord, 0, q.Limit)
	for rows.Next() {
		var rec CandidateRecord
		if err := rows.Scan(
			&rec.UserID,
			&rec.DisplayName,
			&rec.Gender,
			&rec.Latitude,
			&rec.Longitude,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate candidates: %w", rows.Err())
	}

	return items, nil
}
