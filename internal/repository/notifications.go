package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const notificationColumns = `id, to_ship_id, recipient_email, type, title, message, read, created_at`

func insertNotification(ctx context.Context, q querier, n model.Notification) error {
	_, err := q.Exec(ctx,
		`INSERT INTO delivery_notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.ToShipID, n.RecipientEmail, string(n.Type), n.Title, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func queryNotifications(ctx context.Context, q querier, query string, args ...any) ([]model.Notification, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	res := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n   model.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.ToShipID, &n.RecipientEmail, &typ, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// attachNotifications заполняет уведомления у переданных доставок одним запросом.
func attachNotifications(ctx context.Context, q querier, items []model.ToShip) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
		index[items[i].ID] = i
		items[i].Notifications = []model.Notification{}
	}

	list, err := queryNotifications(ctx, q,
		`SELECT `+notificationColumns+` FROM delivery_notifications
		 WHERE to_ship_id = ANY($1)
		 ORDER BY created_at`,
		ids,
	)
	if err != nil {
		return err
	}

	for _, n := range list {
		if i, ok := index[n.ToShipID]; ok {
			items[i].Notifications = append(items[i].Notifications, n)
		}
	}
	return nil
}

// ListNotifications возвращает страницу уведомлений получателя вместе с общим числом и числом непрочитанных.
func (r *PostgresRepository) ListNotifications(ctx context.Context, email string, unreadOnly bool, limit, offset int) ([]model.Notification, int, int, error) {
	var total, unread int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE NOT read)
		 FROM delivery_notifications WHERE recipient_email = lower($1)`,
		email,
	).Scan(&total, &unread)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `SELECT ` + notificationColumns + ` FROM delivery_notifications WHERE recipient_email = lower($1)`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	list, err := queryNotifications(ctx, r.pool, query, email, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	return list, total, unread, nil
}

// MarkNotificationsRead помечает уведомления получателя прочитанными. Пустой ids помечает все.
func (r *PostgresRepository) MarkNotificationsRead(ctx context.Context, email string, ids []uuid.UUID) (int64, error) {
	query := `UPDATE delivery_notifications SET read = TRUE WHERE recipient_email = lower($1) AND NOT read`
	args := []any{email}
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
