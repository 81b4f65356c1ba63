package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const userColumns = `id, email, name, password_hash, role, email_verified, banned, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.EmailVerified, &u.Banned, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Entity: "User"}
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// CreateUser сохраняет новую учётную запись.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, email_verified, banned)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.EmailVerified, u.Banned,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &model.ConflictError{Message: "User with this email already exists"}
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// EmailExists сообщает, зарегистрирован ли email.
func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// UpdateUserRole меняет роль пользователя.
func (r *PostgresRepository) UpdateUserRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET role = $2 WHERE id = $1 RETURNING `+userColumns, id, string(role)))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return u, nil
}

// SetUserBanned блокирует или разблокирует пользователя.
func (r *PostgresRepository) SetUserBanned(ctx context.Context, id uuid.UUID, banned bool) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET banned = $2 WHERE id = $1 RETURNING `+userColumns, id, banned))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user ban: %w", err)
	}
	return u, nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	res := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
