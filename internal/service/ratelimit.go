package service

import (
	"context"
	"errors"
	"strings"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// Ключи клиентских лимитов и внутренних лимитов сервиса не пересекаются.
const (
	clientKeyPrefix   = "client:"
	internalKeyPrefix = "internal:"
)

func normalizeRateLimit(in model.RateLimitInput) (model.RateLimitInput, error) {
	in.Key = strings.TrimSpace(in.Key)
	if err := validation.Struct(in); err != nil {
		return in, err
	}
	return in, nil
}

// CheckRateLimit сообщает, сколько запросов осталось в текущем окне, не меняя счётчик.
func (s *Service) CheckRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error) {
	in, err := normalizeRateLimit(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rl, err := s.repo.GetRateLimit(ctx, clientKeyPrefix+in.Key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.RateLimitStatus{Allowed: true, Remaining: in.Max}, nil
		}
		return nil, err
	}
	if rl.Expired(now) {
		return &model.RateLimitStatus{Allowed: true, Remaining: in.Max}, nil
	}
	if rl.Count >= in.Max {
		return nil, &model.RateLimitedError{RetryAfter: rl.RetryAfter(now)}
	}
	return &model.RateLimitStatus{Allowed: true, Remaining: in.Max - rl.Count}, nil
}

// IncrementRateLimit учитывает запрос. Запрос сверх max в пределах окна отклоняется.
func (s *Service) IncrementRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error) {
	in, err := normalizeRateLimit(in)
	if err != nil {
		return nil, err
	}
	return s.increment(ctx, clientKeyPrefix+in.Key, in.WindowSeconds, in.Max)
}

func (s *Service) increment(ctx context.Context, key string, windowSeconds, maxRequests int) (*model.RateLimitStatus, error) {
	now := s.now().UTC()
	rl, err := s.repo.IncrementRateLimit(ctx, key, windowSeconds, now)
	if err != nil {
		return nil, err
	}
	if rl.Count > maxRequests {
		return nil, &model.RateLimitedError{RetryAfter: rl.RetryAfter(now)}
	}
	return &model.RateLimitStatus{Allowed: true, Remaining: maxRequests - rl.Count}, nil
}

// ClearRateLimit сбрасывает счётчик ключа.
func (s *Service) ClearRateLimit(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return validation.New("key is required")
	}
	return s.repo.ClearRateLimit(ctx, clientKeyPrefix+key)
}

// Allow учитывает внутренний запрос сервиса по ключу и сообщает, укладывается ли он в лимит.
// Клиентские ключи до этих счётчиков не достают.
func (s *Service) Allow(ctx context.Context, key string, windowSeconds, maxRequests int) error {
	_, err := s.increment(ctx, internalKeyPrefix+key, windowSeconds, maxRequests)
	return err
}
