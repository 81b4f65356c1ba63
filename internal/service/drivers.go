package service

import (
	"context"
	"strings"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// ListDrivers возвращает курьеров вместе с их push-токенами.
func (s *Service) ListDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	drivers, err := s.repo.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	if drivers == nil {
		drivers = []model.DriverProfile{}
	}
	return drivers, nil
}

// GetDriver возвращает запись push-токена курьера. Читать токен может сам пользователь
// или персонал, назначающий доставки.
func (s *Service) GetDriver(ctx context.Context, by *model.User, rawUserID string) (*model.Driver, error) {
	id, err := parseID(rawUserID)
	if err != nil {
		return nil, err
	}
	if by.ID != id && !by.Role.OneOf(model.RoleAdmin, model.RoleCashier) {
		return nil, model.ErrForbidden
	}
	return s.repo.GetDriver(ctx, id)
}

// UpdateDriverToken сохраняет push-токен. Менять токен может сам пользователь или администратор.
func (s *Service) UpdateDriverToken(ctx context.Context, by *model.User, rawUserID, token string) (*model.Driver, error) {
	id, err := parseID(rawUserID)
	if err != nil {
		return nil, err
	}
	if by.ID != id && by.Role != model.RoleAdmin {
		return nil, model.ErrForbidden
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validation.New("fcmToken is required")
	}

	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.UpsertDriver(ctx, id, token, s.now().UTC())
}
