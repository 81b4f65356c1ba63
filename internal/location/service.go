package location

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// CacheTTL — время жизни закешированного результата поиска.
const CacheTTL = 24 * time.Hour

// Cache хранит результаты поиска между запросами.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Service ищет координаты по адресу, кешируя результаты.
type Service struct {
	matcher *Matcher
	cache   Cache
	logger  *zap.Logger
}

// NewService создаёт сервис поиска. cache может быть nil.
func NewService(m *Matcher, c Cache, logger *zap.Logger) *Service {
	return &Service{matcher: m, cache: c, logger: logger}
}

// Lookup возвращает барангай, лучше всего совпадающий с адресом.
func (s *Service) Lookup(ctx context.Context, address string) (*Match, error) {
	key := normalize(address)
	if key == "" {
		return nil, validation.New("address is required")
	}
	cacheKey := "location:" + key

	if s.cache != nil {
		var cached Match
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return &cached, nil
		}
	}

	match, ok := s.matcher.Match(address)
	if !ok {
		return nil, &model.NotFoundError{Entity: "Location"}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, match, CacheTTL); err != nil {
			s.logger.Warn("cache location", zap.Error(err))
		}
	}
	return &match, nil
}
