package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// SignUp регистрирует пользователя с ролью user.
func (s *Service) SignUp(ctx context.Context, in model.SignUpInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.createUser(ctx, in, model.RoleUser)
}

func (s *Service) createUser(ctx context.Context, in model.SignUpInput, role model.Role) (*model.User, error) {
	exists, err := s.repo.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &model.ConflictError{Message: "User with this email already exists"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SignIn проверяет email и пароль.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}
	if u.Banned {
		return nil, model.ErrForbidden
	}
	return u, nil
}

// CurrentUser перечитывает пользователя сессии. Удалённый или заблокированный пользователь не аутентифицирован.
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrUnauthenticated
		}
		return nil, err
	}
	if u.Banned {
		return nil, model.ErrUnauthenticated
	}
	return u, nil
}

// VerifyEmail сообщает, зарегистрирован ли email.
func (s *Service) VerifyEmail(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, validation.New("email is required")
	}
	return s.repo.EmailExists(ctx, email)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// ChangeRole назначает пользователю роль.
func (s *Service) ChangeRole(ctx context.Context, by *model.User, rawID, rawRole string) (*model.User, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	role, ok := model.ParseRole(rawRole)
	if !ok {
		return nil, validation.New("role must be one of: admin, cashier, delivery, user")
	}
	if id == by.ID && role != model.RoleAdmin {
		return nil, validation.New("you cannot remove your own admin role")
	}
	return s.repo.UpdateUserRole(ctx, id, role)
}

// SetBanned блокирует или разблокирует пользователя.
func (s *Service) SetBanned(ctx context.Context, by *model.User, rawID string, banned bool) (*model.User, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	if id == by.ID && banned {
		return nil, validation.New("you cannot ban yourself")
	}
	return s.repo.SetUserBanned(ctx, id, banned)
}

// EnsureAdmin создаёт администратора с указанным email или повышает существующего пользователя.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == model.RoleAdmin {
			return nil
		}
		if _, err := s.repo.UpdateUserRole(ctx, u.ID, model.RoleAdmin); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		s.logger.Info("user promoted to admin", zap.String("email", email))
		return nil
	case !errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}

	in := model.SignUpInput{Name: "Administrator", Email: email, Password: password}
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("admin account: %w", err)
	}
	if _, err := s.createUser(ctx, in, model.RoleAdmin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin account created", zap.String("email", email))
	return nil
}
