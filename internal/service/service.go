// Package service реализует бизнес-логику складского сервиса.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/push"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateUserRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.User, error)
	SetUserBanned(ctx context.Context, id uuid.UUID, banned bool) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	ListCategories(ctx context.Context, search string) ([]model.Category, error)
	CategoryExists(ctx context.Context, name string) (bool, error)
	CreateCategory(ctx context.Context, c *model.Category) error

	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	SKUExists(ctx context.Context, sku string, exclude uuid.UUID) (bool, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, id uuid.UUID, apply func(p *model.Product) error) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	SellProduct(ctx context.Context, id uuid.UUID, quantity int, by model.Actor, at time.Time) (*model.Sale, error)
	ListProductHistory(ctx context.Context, productID uuid.UUID) ([]model.ProductHistory, error)

	CreateShipment(ctx context.Context, t *model.ToShip, by model.Actor) (*model.Product, error)
	GetToShip(ctx context.Context, id uuid.UUID) (*model.ToShip, error)
	TransitionDelivery(ctx context.Context, id uuid.UUID, next model.DeliveryStatus, by *model.User, at time.Time) (*model.ToShip, error)
	ListAssigned(ctx context.Context, email string, statuses []model.DeliveryStatus) ([]model.ToShip, error)
	ListDeliveries(ctx context.Context) ([]model.ToShip, error)
	ListArchived(ctx context.Context, email string, limit, offset int) ([]model.ArchivedDelivery, error)
	CountArchived(ctx context.Context, email string) (int, error)
	CleanupDeliveries(ctx context.Context, before, at time.Time) (archived, deleted int64, err error)

	ListNotifications(ctx context.Context, email string, unreadOnly bool, limit, offset int) ([]model.Notification, int, int, error)
	MarkNotificationsRead(ctx context.Context, email string, ids []uuid.UUID) (int64, error)

	ListDrivers(ctx context.Context) ([]model.DriverProfile, error)
	GetDriver(ctx context.Context, userID uuid.UUID) (*model.Driver, error)
	GetDriverTokenByEmail(ctx context.Context, email string) (string, error)
	UpsertDriver(ctx context.Context, userID uuid.UUID, token string, at time.Time) (*model.Driver, error)

	GetRateLimit(ctx context.Context, key string) (*model.RateLimit, error)
	IncrementRateLimit(ctx context.Context, key string, windowSeconds int, now time.Time) (*model.RateLimit, error)
	ClearRateLimit(ctx context.Context, key string) error
}

// Publisher доставляет события подключённым клиентам.
type Publisher interface {
	Publish(userEmail, eventType string, data any) bool
}

// Pusher отправляет мобильные push-уведомления.
type Pusher interface {
	Send(ctx context.Context, msg push.Message) error
}

// Service содержит бизнес-логику складского сервиса.
type Service struct {
	repo      Repository
	publisher Publisher
	pusher    Pusher
	logger    *zap.Logger

	now         func() time.Time
	pushTimeout time.Duration
	pushResult  func(ok bool)

	wg sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithPushResult задаёт обработчик результата отправки push-уведомления.
func WithPushResult(fn func(ok bool)) Option {
	return func(s *Service) { s.pushResult = fn }
}

// NewService создаёт сервис. publisher и pusher могут быть nil.
func NewService(repo Repository, publisher Publisher, pusher Pusher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		publisher:   publisher,
		pusher:      pusher,
		logger:      logger,
		now:         time.Now,
		pushTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close дожидается отправки push-уведомлений и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.wg.Wait()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) publish(email, eventType string, data any) bool {
	if s.publisher == nil || email == "" {
		return false
	}
	return s.publisher.Publish(email, eventType, data)
}

// pushAsync отправляет push-уведомление в фоне; ошибки только логируются.
func (s *Service) pushAsync(msg push.Message) {
	if s.pusher == nil || msg.Token == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()

		err := s.pusher.Send(ctx, msg)
		if err != nil {
			s.logger.Warn("push notification failed", zap.Error(err), zap.String("title", msg.Title))
		}
		if s.pushResult != nil {
			s.pushResult(err == nil)
		}
	}()
}

// pageBounds приводит номер страницы и размер к допустимым значениям и считает смещение.
func pageBounds(page, limit, defLimit int) (int, int, int) {
	if limit < 1 {
		limit = defLimit
	}
	limit = min(limit, maxPageLimit)
	page = min(max(page, 1), maxPage)
	return page, limit, (page - 1) * limit
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, model.ErrInvalidID
	}
	return id, nil
}
