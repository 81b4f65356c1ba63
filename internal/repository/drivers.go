package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// ListDrivers возвращает пользователей с ролью delivery и их push-токены.
func (r *PostgresRepository) ListDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name, u.email, COALESCE(d.fcm_token, '')
		 FROM users u
		 LEFT JOIN drivers d ON d.user_id = u.id
		 WHERE u.role = $1 AND NOT u.banned
		 ORDER BY u.name`,
		string(model.RoleDelivery),
	)
	if err != nil {
		return nil, fmt.Errorf("select drivers: %w", err)
	}
	defer rows.Close()

	res := make([]model.DriverProfile, 0)
	for rows.Next() {
		var d model.DriverProfile
		if err := rows.Scan(&d.ID, &d.Name, &d.Email, &d.FCMToken); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetDriver возвращает push-токен курьера.
func (r *PostgresRepository) GetDriver(ctx context.Context, userID uuid.UUID) (*model.Driver, error) {
	var d model.Driver
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, fcm_token, updated_at FROM drivers WHERE user_id = $1`, userID,
	).Scan(&d.UserID, &d.FCMToken, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Entity: "Driver"}
		}
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}

// GetDriverTokenByEmail возвращает push-токен курьера по email; пустая строка, если токена нет.
func (r *PostgresRepository) GetDriverTokenByEmail(ctx context.Context, email string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx,
		`SELECT d.fcm_token FROM drivers d JOIN users u ON u.id = d.user_id WHERE u.email = lower($1)`, email,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get driver token: %w", err)
	}
	return token, nil
}

// UpsertDriver создаёт или обновляет push-токен курьера.
func (r *PostgresRepository) UpsertDriver(ctx context.Context, userID uuid.UUID, token string, at time.Time) (*model.Driver, error) {
	d := model.Driver{UserID: userID, FCMToken: token, UpdatedAt: at}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO drivers (user_id, fcm_token, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET fcm_token = EXCLUDED.fcm_token, updated_at = EXCLUDED.updated_at`,
		d.UserID, d.FCMToken, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert driver: %w", err)
	}
	return &d, nil
}
