package repository

import (
	"context"
	"fmt"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// ListCategories возвращает категории, отфильтрованные по подстроке имени.
func (r *PostgresRepository) ListCategories(ctx context.Context, search string) ([]model.Category, error) {
	query := `SELECT id, name, created_by_id, created_by_name, created_by_role, created_at FROM categories`
	var args []any
	if search != "" {
		query += ` WHERE name ILIKE $1`
		args = append(args, likePattern(search))
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	res := make([]model.Category, 0)
	for rows.Next() {
		var (
			c    model.Category
			role string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedBy.ID, &c.CreatedBy.Name, &role, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedBy.Role = model.Role(role)
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CategoryExists проверяет наличие категории с таким именем без учёта регистра.
func (r *PostgresRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE lower(name) = lower($1))`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	return exists, nil
}

// CreateCategory сохраняет новую категорию.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c *model.Category) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (id, name, created_by_id, created_by_name, created_by_role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		c.ID, c.Name, c.CreatedBy.ID, c.CreatedBy.Name, string(c.CreatedBy.Role),
	).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &model.ConflictError{Message: "Category already exists"}
		}
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}
