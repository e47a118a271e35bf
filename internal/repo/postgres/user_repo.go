package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberlabs/ember/backend/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	var user model.User
	err := r.pool.QueryRow(ctx, `
SELECT id, display_name, gender, interested_in, latitude, longitude, is_active, total_likes, total_matches, created_at, updated_at
FROM users
WHERE id = $1
`, userID).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Gender,
		&user.InterestedIn,
		&user.Latitude,
		&user.Longitude,
		&user.IsActive,
		&user.TotalLikes,
		&user.TotalMatches,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// IncrementLikes bumps the denormalized like counter on the receiver.
func (r *UserRepo) IncrementLikes(ctx context.Context, tx pgx.Tx, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
UPDATE users
SET total_likes = total_likes + 1, updated_at = NOW()
WHERE id = $1
`, userID); err != nil {
		return fmt.Errorf("increment total likes: %w", err)
	}
	return nil
}

// IncrementMatches bumps the denormalized match counter on both
// participants inside the match-creating transaction.
func (r *UserRepo) IncrementMatches(ctx context.Context, tx pgx.Tx, userA, userB int64) error {
	if userA <= 0 || userB <= 0 {
		return fmt.Errorf("invalid user pair")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
UPDATE users
SET total_matches = total_matches + 1, updated_at = NOW()
WHERE id = ANY(ARRAY[$1, $2]::bigint[])
`, userA, userB); err != nil {
		return fmt.Errorf("increment total matches: %w", err)
	}
	return nil
}
