package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// GetRateLimit возвращает счётчик по ключу.
func (r *PostgresRepository) GetRateLimit(ctx context.Context, key string) (*model.RateLimit, error) {
	rl := model.RateLimit{Key: key}
	err := r.pool.QueryRow(ctx,
		`SELECT count, window_start, window_seconds FROM rate_limits WHERE key = $1`, key,
	).Scan(&rl.Count, &rl.WindowStart, &rl.WindowSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Entity: "Rate limit"}
		}
		return nil, fmt.Errorf("get rate limit: %w", err)
	}
	return &rl, nil
}

// IncrementRateLimit увеличивает счётчик ключа. Если окно истекло или записи нет, счётчик
// начинается заново с 1. Конкурентные вызовы сериализуются блокировкой строки в ON CONFLICT.
func (r *PostgresRepository) IncrementRateLimit(ctx context.Context, key string, windowSeconds int, now time.Time) (*model.RateLimit, error) {
	rl := model.RateLimit{Key: key}
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO rate_limits (key, count, window_start, window_seconds)
			 VALUES ($1, 1, $2, $3)
			 ON CONFLICT (key) DO UPDATE SET
				count = CASE WHEN rate_limits.window_start + $3 * interval '1 second' <= $2
					THEN 1 ELSE rate_limits.count + 1 END,
				window_start = CASE WHEN rate_limits.window_start + $3 * interval '1 second' <= $2
					THEN $2 ELSE rate_limits.window_start END,
				window_seconds = $3
			 RETURNING count, window_start, window_seconds`,
			key, now, windowSeconds,
		).Scan(&rl.Count, &rl.WindowStart, &rl.WindowSeconds)
	})
	if err != nil {
		return nil, fmt.Errorf("increment rate limit: %w", err)
	}
	return &rl, nil
}

// ClearRateLimit удаляет счётчик ключа.
func (r *PostgresRepository) ClearRateLimit(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clear rate limit: %w", err)
	}
	return nil
}
