package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/push"
	"github.com/maxxi02/thesis-project01-sub001/internal/repository"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// Типы событий, публикуемых подключённым клиентам.
const (
	EventNewShipment     = "new-shipment"
	EventDeliveryStarted = "delivery-started"
	EventStatusUpdate    = "status-update"
)

const (
	defaultArchivedLimit = 10
	maxPageLimit         = 100
	maxPage              = 1_000_000
)

// AssignShipment резервирует товар и назначает доставку курьеру.
func (s *Service) AssignShipment(ctx context.Context, by *model.User, in model.ShipmentInput) (*model.ToShip, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.Destination = strings.TrimSpace(in.Destination)
	in.Notes = strings.TrimSpace(in.Notes)
	in.DeliveryPersonnel.ID = strings.TrimSpace(in.DeliveryPersonnel.ID)
	in.DeliveryPersonnel.FullName = strings.TrimSpace(in.DeliveryPersonnel.FullName)
	in.DeliveryPersonnel.Email = strings.ToLower(strings.TrimSpace(in.DeliveryPersonnel.Email))
	in.DeliveryPersonnel.FCMToken = strings.TrimSpace(in.DeliveryPersonnel.FCMToken)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	token := in.DeliveryPersonnel.FCMToken
	if token == "" {
		stored, err := s.repo.GetDriverTokenByEmail(ctx, in.DeliveryPersonnel.Email)
		if err != nil {
			s.logger.Warn("lookup driver token", zap.Error(err), zap.String("email", in.DeliveryPersonnel.Email))
		}
		token = stored
	}

	now := s.now().UTC()
	t := &model.ToShip{
		ID:        uuid.New(),
		ProductID: uuid.MustParse(in.ProductID),
		Quantity:  in.Quantity,
		DeliveryPersonnel: model.Personnel{
			ID:       uuid.MustParse(in.DeliveryPersonnel.ID),
			FullName: in.DeliveryPersonnel.FullName,
			Email:    in.DeliveryPersonnel.Email,
			FCMToken: token,
		},
		Destination:   in.Destination,
		Coordinates:   in.Coordinates,
		Notes:         in.Notes,
		Status:        model.DeliveryStatusPending,
		MarkedBy:      model.MarkerOf(by),
		CreatedAt:     now,
		UpdatedAt:     now,
		Notifications: []model.Notification{},
	}

	if _, err := s.repo.CreateShipment(ctx, t, model.ActorOf(by)); err != nil {
		return nil, err
	}

	s.announceShipment(t)
	return t, nil
}

// announceShipment сообщает курьеру о новой доставке через поток событий и push.
func (s *Service) announceShipment(t *model.ToShip) bool {
	delivered := s.publish(t.DeliveryPersonnel.Email, EventNewShipment, t)
	s.pushAsync(push.Message{
		Token: t.DeliveryPersonnel.FCMToken,
		Title: "New shipment assigned",
		Body:  fmt.Sprintf("%s (x%d) to %s", t.ProductName, t.Quantity, t.Destination),
		Data:  map[string]string{"type": EventNewShipment, "toShipId": t.ID.String()},
	})
	return delivered
}

// announceStatus рассылает событие о смене статуса курьеру и оформившему доставку.
func (s *Service) announceStatus(t *model.ToShip, eventType string) bool {
	delivered := s.publish(t.DeliveryPersonnel.Email, eventType, t)
	if !strings.EqualFold(t.MarkedBy.Email, t.DeliveryPersonnel.Email) {
		if s.publish(t.MarkedBy.Email, eventType, t) {
			delivered = true
		}
	}
	s.pushAsync(push.Message{
		Token: t.DeliveryPersonnel.FCMToken,
		Title: "Delivery " + string(t.Status),
		Body:  fmt.Sprintf("%s (x%d) to %s is now %s", t.ProductName, t.Quantity, t.Destination, t.Status),
		Data:  map[string]string{"type": eventType, "toShipId": t.ID.String(), "status": string(t.Status)},
	})
	return delivered
}

// loadDelivery возвращает доставку и проверяет, что курьер работает только со своими доставками.
func (s *Service) loadDelivery(ctx context.Context, by *model.User, rawID string) (*model.ToShip, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.GetToShip(ctx, id)
	if err != nil {
		return nil, err
	}
	if by.Role == model.RoleDelivery && !strings.EqualFold(by.Email, t.DeliveryPersonnel.Email) {
		return nil, model.ErrForbidden
	}
	return t, nil
}

// UpdateDeliveryStatus переводит доставку в новый статус и уведомляет участников.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, by *model.User, rawID, rawStatus string) (*model.ToShip, error) {
	next := model.DeliveryStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if !next.Valid() {
		return nil, validation.New("status must be one of: pending, in-transit, delivered, cancelled")
	}

	t, err := s.loadDelivery(ctx, by, rawID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.TransitionDelivery(ctx, t.ID, next, by, s.now().UTC())
	if err != nil {
		return nil, err
	}

	eventType := EventStatusUpdate
	if next == model.DeliveryStatusInTransit {
		eventType = EventDeliveryStarted
	}
	s.announceStatus(updated, eventType)
	return updated, nil
}

// StartDelivery переводит доставку из pending в in-transit. Уже начатая доставка не меняется.
func (s *Service) StartDelivery(ctx context.Context, by *model.User, rawID string) (*model.ToShip, bool, error) {
	t, err := s.loadDelivery(ctx, by, rawID)
	if err != nil {
		return nil, false, err
	}
	if t.Status != model.DeliveryStatusPending {
		return t, true, nil
	}

	updated, err := s.repo.TransitionDelivery(ctx, t.ID, model.DeliveryStatusInTransit, by, s.now().UTC())
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			current, getErr := s.repo.GetToShip(ctx, t.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return current, true, nil
		}
		return nil, false, err
	}

	s.announceStatus(updated, EventDeliveryStarted)
	return updated, false, nil
}

// NotifyNewShipment повторно отправляет курьеру уведомление о доставке без сохранения.
func (s *Service) NotifyNewShipment(ctx context.Context, by *model.User, rawID string) (bool, error) {
	t, err := s.loadDelivery(ctx, by, rawID)
	if err != nil {
		return false, err
	}
	return s.announceShipment(t), nil
}

func parseStatusFilter(raw string) ([]model.DeliveryStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return []model.DeliveryStatus{model.DeliveryStatusPending, model.DeliveryStatusInTransit}, nil
	case "all":
		return []model.DeliveryStatus{
			model.DeliveryStatusPending, model.DeliveryStatusInTransit,
			model.DeliveryStatusDelivered, model.DeliveryStatusCancelled,
		}, nil
	}

	var res []model.DeliveryStatus
	for _, part := range strings.Split(raw, ",") {
		st := model.DeliveryStatus(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, validation.New("status must be one of: pending, in-transit, delivered, cancelled, all")
		}
		res = append(res, st)
	}
	return res, nil
}

// driverEmail выбирает, чьи доставки показывать: курьер видит только свои.
func driverEmail(by *model.User, requested string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if by.Role == model.RoleDelivery || requested == "" {
		return strings.ToLower(by.Email)
	}
	return requested
}

// AssignedDeliveries возвращает доставки курьера; без фильтра — только незавершённые.
func (s *Service) AssignedDeliveries(ctx context.Context, by *model.User, email, status string) ([]model.ToShip, error) {
	statuses, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAssigned(ctx, driverEmail(by, email), statuses)
}

// TrackDeliveries возвращает все активные доставки либо одну, если указан id.
func (s *Service) TrackDeliveries(ctx context.Context, rawID string) ([]model.ToShip, error) {
	if strings.TrimSpace(rawID) == "" {
		return s.repo.ListDeliveries(ctx)
	}
	id, err := parseID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, err
	}
	t, err := s.repo.GetToShip(ctx, id)
	if err != nil {
		return nil, err
	}
	return []model.ToShip{*t}, nil
}

// ArchivedDeliveries возвращает страницу архива курьера.
func (s *Service) ArchivedDeliveries(ctx context.Context, by *model.User, email string, page, limit int) (*model.ArchivedPage, error) {
	page, limit, offset := pageBounds(page, limit, defaultArchivedLimit)

	target := driverEmail(by, email)
	items, err := s.repo.ListArchived(ctx, target, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountArchived(ctx, target)
	if err != nil {
		return nil, err
	}
	return &model.ArchivedPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// ArchivedCount возвращает число архивных доставок курьера.
func (s *Service) ArchivedCount(ctx context.Context, by *model.User, email string) (int, error) {
	return s.repo.CountArchived(ctx, driverEmail(by, email))
}

// CleanupDeliveries удаляет доставки, завершённые более RetentionPeriod назад.
func (s *Service) CleanupDeliveries(ctx context.Context) (*model.CleanupResult, error) {
	now := s.now().UTC()
	archived, deleted, err := s.repo.CleanupDeliveries(ctx, now.Add(-repository.RetentionPeriod), now)
	if err != nil {
		return nil, err
	}
	return &model.CleanupResult{Archived: archived, Deleted: deleted}, nil
}

// StartCleanup периодически запускает очистку завершённых доставок до отмены ctx.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.CleanupDeliveries(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("delivery cleanup failed", zap.Error(err))
				continue
			}
			if res.Deleted > 0 || res.Archived > 0 {
				s.logger.Info("delivery cleanup",
					zap.Int64("archived", res.Archived),
					zap.Int64("deleted", res.Deleted),
				)
			}
		}
	}
}
