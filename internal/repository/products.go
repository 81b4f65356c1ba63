package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const productColumns = `id, name, sku, description, price, stock, category, status,
	created_by_id, created_by_name, created_by_role,
	updated_by_id, updated_by_name, updated_by_role,
	created_at, updated_at`

// ErrSKUExists возвращается при повторном SKU.
var ErrSKUExists = &model.ConflictError{Message: "Product with this SKU already exists"}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var status, createdRole, updatedRole string
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Description, &p.Price, &p.Stock, &p.Category, &status,
		&p.CreatedBy.ID, &p.CreatedBy.Name, &createdRole,
		&p.UpdatedBy.ID, &p.UpdatedBy.Name, &updatedRole,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Entity: "Product"}
		}
		return nil, err
	}
	p.Status = model.ProductStatus(status)
	p.CreatedBy.Role = model.Role(createdRole)
	p.UpdatedBy.Role = model.Role(updatedRole)
	return &p, nil
}

// ListProducts возвращает товары по фильтру, новые первыми.
func (r *PostgresRepository) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	var (
		conds []string
		args  []any
	)
	if f.Search != "" {
		args = append(args, likePattern(f.Search))
		n := strconv.Itoa(len(args))
		conds = append(conds, `(name ILIKE $`+n+` OR sku ILIKE $`+n+` OR description ILIKE $`+n+`)`)
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, `category = $`+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// SKUExists проверяет, занят ли SKU другим товаром. exclude = uuid.Nil проверяет все товары.
func (r *PostgresRepository) SKUExists(ctx context.Context, sku string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1 AND id <> $2)`, sku, exclude,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sku: %w", err)
	}
	return exists, nil
}

// CreateProduct сохраняет новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, name, sku, description, price, stock, category, status,
			created_by_id, created_by_name, created_by_role,
			updated_by_id, updated_by_name, updated_by_role,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Name, p.SKU, p.Description, p.Price, p.Stock, p.Category, string(p.Status),
		p.CreatedBy.ID, p.CreatedBy.Name, string(p.CreatedBy.Role),
		p.UpdatedBy.ID, p.UpdatedBy.Name, string(p.UpdatedBy.Role),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSKUExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct блокирует строку товара, применяет к ней apply и сохраняет результат в одной транзакции.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, id uuid.UUID, apply func(p *model.Product) error) (*model.Product, error) {
	var res *model.Product
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(p); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET name = $2, sku = $3, description = $4, price = $5, stock = $6,
				category = $7, status = $8, updated_by_id = $9, updated_by_name = $10, updated_by_role = $11,
				updated_at = $12
			 WHERE id = $1`,
			p.ID, p.Name, p.SKU, p.Description, p.Price, p.Stock, p.Category, string(p.Status),
			p.UpdatedBy.ID, p.UpdatedBy.Name, string(p.UpdatedBy.Role), p.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSKUExists
			}
			return fmt.Errorf("update product: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		res = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteProduct удаляет товар.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "Product"}
	}
	return nil
}

// lockProduct блокирует строку товара до конца транзакции.
func lockProduct(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

// setStock меняет остаток товара и пересчитывает его статус.
func setStock(ctx context.Context, tx pgx.Tx, p *model.Product, stock int, by model.Actor, at time.Time) error {
	p.Stock = stock
	p.Status = model.DeriveStatus(p.Status, stock)
	p.UpdatedBy = by
	p.UpdatedAt = at

	_, err := tx.Exec(ctx,
		`UPDATE products SET stock = $2, status = $3,
			updated_by_id = $4, updated_by_name = $5, updated_by_role = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, p.Stock, string(p.Status), by.ID, by.Name, string(by.Role), at,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

// SellProduct списывает остаток и добавляет запись в журнал продаж в одной транзакции.
func (r *PostgresRepository) SellProduct(ctx context.Context, id uuid.UUID, quantity int, by model.Actor, at time.Time) (*model.Sale, error) {
	var sale *model.Sale
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}

		if p.Stock < quantity {
			return &model.InsufficientStockError{Available: p.Stock, Requested: quantity}
		}

		if err := setStock(ctx, tx, p, p.Stock-quantity, by, at); err != nil {
			return err
		}

		h := &model.ProductHistory{
			ID:           uuid.New(),
			ProductID:    p.ID,
			QuantitySold: quantity,
			UnitPrice:    p.Price,
			TotalAmount:  p.Price * float64(quantity),
			SaleDate:     at,
			SoldBy:       by,
			SaleType:     model.SaleTypeDirect,
			Status:       model.SaleStatusCompleted,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO product_history (id, product_id, quantity_sold, unit_price, total_amount, sale_date,
				sold_by_id, sold_by_name, sold_by_role, sale_type, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			h.ID, h.ProductID, h.QuantitySold, h.UnitPrice, h.TotalAmount, h.SaleDate,
			h.SoldBy.ID, h.SoldBy.Name, string(h.SoldBy.Role), string(h.SaleType), h.Status,
		)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		sale = &model.Sale{Product: p, History: h}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListProductHistory возвращает журнал продаж товара, новые первыми.
func (r *PostgresRepository) ListProductHistory(ctx context.Context, productID uuid.UUID) ([]model.ProductHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, quantity_sold, unit_price, total_amount, sale_date,
			sold_by_id, sold_by_name, sold_by_role, sale_type, status
		 FROM product_history
		 WHERE product_id = $1
		 ORDER BY sale_date DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	res := make([]model.ProductHistory, 0)
	for rows.Next() {
		var (
			h              model.ProductHistory
			role, saleType string
		)
		if err := rows.Scan(&h.ID, &h.ProductID, &h.QuantitySold, &h.UnitPrice, &h.TotalAmount, &h.SaleDate,
			&h.SoldBy.ID, &h.SoldBy.Name, &role, &saleType, &h.Status); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.SoldBy.Role = model.Role(role)
		h.SaleType = model.SaleType(saleType)
		res = append(res, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
