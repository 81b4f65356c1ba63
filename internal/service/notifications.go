package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

const defaultNotificationLimit = 20

// ListNotifications возвращает уведомления пользователя, новые первыми.
func (s *Service) ListNotifications(ctx context.Context, by *model.User, page, limit int, unreadOnly bool) (*model.NotificationPage, error) {
	page, limit, offset := pageBounds(page, limit, defaultNotificationLimit)

	items, total, unread, err := s.repo.ListNotifications(ctx, strings.ToLower(by.Email), unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Notification{}
	}
	return &model.NotificationPage{
		Items:       items,
		Total:       total,
		UnreadCount: unread,
		Page:        page,
		Limit:       limit,
	}, nil
}

// MarkNotificationsRead отмечает уведомления прочитанными. Пустой список отмечает все.
func (s *Service) MarkNotificationsRead(ctx context.Context, by *model.User, rawIDs []string) (int64, error) {
	ids := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := parseID(strings.TrimSpace(raw))
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	return s.repo.MarkNotificationsRead(ctx, strings.ToLower(by.Email), ids)
}
