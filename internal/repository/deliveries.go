package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const toShipColumns = `id, product_id, product_name, quantity,
	personnel_id, personnel_name, personnel_email, personnel_fcm_token,
	destination, latitude, longitude, notes, status,
	marked_by_id, marked_by_name, marked_by_email,
	started_at, delivered_at, cancelled_at, completed_at, created_at, updated_at`

const archivedColumns = `id, original_id, product_id, product_name, quantity, destination,
	personnel_id, personnel_name, personnel_email, status,
	marked_by_id, marked_by_name, marked_by_email,
	closed_by_id, closed_by_name, closed_by_email,
	started_at, delivered_at, cancelled_at, created_at, archived_at`

// RetentionPeriod — срок хранения завершённой доставки в активной таблице.
const RetentionPeriod = 7 * 24 * time.Hour

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanToShip(row pgx.Row) (*model.ToShip, error) {
	var (
		t        model.ToShip
		status   string
		lat, lng *float64
	)
	err := row.Scan(
		&t.ID, &t.ProductID, &t.ProductName, &t.Quantity,
		&t.DeliveryPersonnel.ID, &t.DeliveryPersonnel.FullName, &t.DeliveryPersonnel.Email, &t.DeliveryPersonnel.FCMToken,
		&t.Destination, &lat, &lng, &t.Notes, &status,
		&t.MarkedBy.ID, &t.MarkedBy.Name, &t.MarkedBy.Email,
		&t.StartedAt, &t.DeliveredAt, &t.CancelledAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Entity: "Delivery"}
		}
		return nil, err
	}
	t.Status = model.DeliveryStatus(status)
	if lat != nil && lng != nil {
		t.Coordinates = &model.Coordinates{Latitude: *lat, Longitude: *lng}
	}
	t.Notifications = []model.Notification{}
	return &t, nil
}

func scanArchived(row pgx.Row) (*model.ArchivedDelivery, error) {
	var (
		a      model.ArchivedDelivery
		status string
	)
	err := row.Scan(
		&a.ID, &a.OriginalID, &a.ProductID, &a.ProductName, &a.Quantity, &a.Destination,
		&a.DeliveryPersonnel.ID, &a.DeliveryPersonnel.FullName, &a.DeliveryPersonnel.Email, &status,
		&a.MarkedBy.ID, &a.MarkedBy.Name, &a.MarkedBy.Email,
		&a.ClosedBy.ID, &a.ClosedBy.Name, &a.ClosedBy.Email,
		&a.StartedAt, &a.DeliveredAt, &a.CancelledAt, &a.CreatedAt, &a.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.DeliveryStatus(status)
	return &a, nil
}

func coordinateArgs(c *model.Coordinates) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Latitude, &c.Longitude
}

// CreateShipment резервирует остаток товара и создаёт доставку в одной транзакции.
func (r *PostgresRepository) CreateShipment(ctx context.Context, t *model.ToShip, by model.Actor) (*model.Product, error) {
	var product *model.Product
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		p, err := lockProduct(ctx, tx, t.ProductID)
		if err != nil {
			return err
		}

		if p.Stock < t.Quantity {
			return &model.InsufficientStockError{Available: p.Stock, Requested: t.Quantity}
		}

		if err := setStock(ctx, tx, p, p.Stock-t.Quantity, by, t.CreatedAt); err != nil {
			return err
		}

		t.ProductName = p.Name
		lat, lng := coordinateArgs(t.Coordinates)
		_, err = tx.Exec(ctx,
			`INSERT INTO to_ship (id, product_id, product_name, quantity,
				personnel_id, personnel_name, personnel_email, personnel_fcm_token,
				destination, latitude, longitude, notes, status,
				marked_by_id, marked_by_name, marked_by_email, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			t.ID, t.ProductID, t.ProductName, t.Quantity,
			t.DeliveryPersonnel.ID, t.DeliveryPersonnel.FullName, t.DeliveryPersonnel.Email, t.DeliveryPersonnel.FCMToken,
			t.Destination, lat, lng, t.Notes, string(t.Status),
			t.MarkedBy.ID, t.MarkedBy.Name, t.MarkedBy.Email, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetToShip возвращает доставку вместе с её уведомлениями.
func (r *PostgresRepository) GetToShip(ctx context.Context, id uuid.UUID) (*model.ToShip, error) {
	t, err := scanToShip(r.pool.QueryRow(ctx, `SELECT `+toShipColumns+` FROM to_ship WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	items := []model.ToShip{*t}
	if err := attachNotifications(ctx, r.pool, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// TransitionDelivery переводит доставку в новый статус. В той же транзакции сохраняются уведомления,
// при отмене возвращается зарезервированный остаток, а завершённая доставка попадает в архив.
func (r *PostgresRepository) TransitionDelivery(ctx context.Context, id uuid.UUID, next model.DeliveryStatus, by *model.User, at time.Time) (*model.ToShip, error) {
	var res *model.ToShip
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		t, err := scanToShip(tx.QueryRow(ctx, `SELECT `+toShipColumns+` FROM to_ship WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return err
			}
			return fmt.Errorf("lock delivery: %w", err)
		}

		if !t.Status.CanTransition(next) {
			return model.ErrInvalidTransition
		}

		t.Stamp(next, at)
		_, err = tx.Exec(ctx,
			`UPDATE to_ship SET status = $2, started_at = $3, delivered_at = $4, cancelled_at = $5,
				completed_at = $6, updated_at = $7
			 WHERE id = $1`,
			t.ID, string(t.Status), t.StartedAt, t.DeliveredAt, t.CancelledAt, t.CompletedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update delivery: %w", err)
		}

		if next == model.DeliveryStatusCancelled {
			if err := restoreStock(ctx, tx, t, model.ActorOf(by), at); err != nil {
				return err
			}
		}

		for _, n := range t.StatusNotifications(at) {
			if err := insertNotification(ctx, tx, n); err != nil {
				return err
			}
		}

		if next.Terminal() {
			if err := insertArchive(ctx, tx, model.ArchiveOf(t, model.MarkerOf(by), at)); err != nil {
				return err
			}
		}

		items := []model.ToShip{*t}
		if err := attachNotifications(ctx, tx, items); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = &items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func restoreStock(ctx context.Context, tx pgx.Tx, t *model.ToShip, by model.Actor, at time.Time) error {
	p, err := lockProduct(ctx, tx, t.ProductID)
	if err != nil {
		// Товар мог быть удалён после оформления доставки.
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	return setStock(ctx, tx, p, p.Stock+t.Quantity, by, at)
}

func insertArchive(ctx context.Context, q querier, a *model.ArchivedDelivery) error {
	_, err := q.Exec(ctx,
		`INSERT INTO archived_deliveries (`+archivedColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (original_id) DO NOTHING`,
		a.ID, a.OriginalID, a.ProductID, a.ProductName, a.Quantity, a.Destination,
		a.DeliveryPersonnel.ID, a.DeliveryPersonnel.FullName, a.DeliveryPersonnel.Email, string(a.Status),
		a.MarkedBy.ID, a.MarkedBy.Name, a.MarkedBy.Email,
		a.ClosedBy.ID, a.ClosedBy.Name, a.ClosedBy.Email,
		a.StartedAt, a.DeliveredAt, a.CancelledAt, a.CreatedAt, a.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	return nil
}

func (r *PostgresRepository) listToShip(ctx context.Context, query string, args ...any) ([]model.ToShip, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}
	defer rows.Close()

	res := make([]model.ToShip, 0)
	for rows.Next() {
		t, err := scanToShip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		res = append(res, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := attachNotifications(ctx, r.pool, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ListAssigned возвращает доставки курьера с указанными статусами, новые первыми.
func (r *PostgresRepository) ListAssigned(ctx context.Context, email string, statuses []model.DeliveryStatus) ([]model.ToShip, error) {
	st := make([]string, 0, len(statuses))
	for _, s := range statuses {
		st = append(st, string(s))
	}
	return r.listToShip(ctx,
		`SELECT `+toShipColumns+` FROM to_ship
		 WHERE personnel_email = lower($1) AND status = ANY($2)
		 ORDER BY created_at DESC`,
		email, st,
	)
}

// ListDeliveries возвращает все активные доставки, новые первыми.
func (r *PostgresRepository) ListDeliveries(ctx context.Context) ([]model.ToShip, error) {
	return r.listToShip(ctx, `SELECT `+toShipColumns+` FROM to_ship ORDER BY created_at DESC`)
}

// ListArchived возвращает страницу архивных доставок курьера, новые первыми.
func (r *PostgresRepository) ListArchived(ctx context.Context, email string, limit, offset int) ([]model.ArchivedDelivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+archivedColumns+` FROM archived_deliveries
		 WHERE personnel_email = lower($1)
		 ORDER BY archived_at DESC
		 LIMIT $2 OFFSET $3`,
		email, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select archived: %w", err)
	}
	defer rows.Close()

	res := make([]model.ArchivedDelivery, 0)
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountArchived возвращает число архивных доставок курьера.
func (r *PostgresRepository) CountArchived(ctx context.Context, email string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM archived_deliveries WHERE personnel_email = lower($1)`, email,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archived: %w", err)
	}
	return n, nil
}

// CleanupDeliveries удаляет доставки, завершённые раньше before. Доставки без архивной копии
// предварительно архивируются.
func (r *PostgresRepository) CleanupDeliveries(ctx context.Context, before, at time.Time) (archived, deleted int64, err error) {
	err = r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`INSERT INTO archived_deliveries (`+archivedColumns+`)
			 SELECT gen_random_uuid(), id, product_id, product_name, quantity, destination,
				personnel_id, personnel_name, personnel_email, status,
				marked_by_id, marked_by_name, marked_by_email,
				marked_by_id, marked_by_name, marked_by_email,
				started_at, delivered_at, cancelled_at, created_at, $2
			 FROM to_ship
			 WHERE completed_at IS NOT NULL AND completed_at < $1
			 ON CONFLICT (original_id) DO NOTHING`,
			before, at,
		)
		if err != nil {
			return fmt.Errorf("archive expired: %w", err)
		}
		archived = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`DELETE FROM to_ship WHERE completed_at IS NOT NULL AND completed_at < $1`, before)
		if err != nil {
			return fmt.Errorf("delete expired: %w", err)
		}
		deleted = tag.RowsAffected()

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	return archived, deleted, err
}
