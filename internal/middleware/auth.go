// Package middleware содержит HTTP middleware складского сервиса.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

type contextKey string

const userKey contextKey = "user"

const (
	// SessionCookieName — имя cookie с токеном сессии.
	SessionCookieName = "session_token"
	sessionTTL        = 7 * 24 * time.Hour
)

var publicPages = map[string]bool{
	"/":        true,
	"/sign-in": true,
	"/sign-up": true,
}

// UserResolver загружает актуальную запись пользователя сессии.
type UserResolver interface {
	CurrentUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Claims — содержимое токена сессии. Subject хранит идентификатор пользователя.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет сессию пользователя по подписанному JWT.
type AuthMiddleware struct {
	secretKey []byte
	resolver  UserResolver
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом secret ключ генерируется случайно.
func NewAuthMiddleware(secret string, resolver UserResolver, logger *zap.Logger) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
	}
}

// IssueToken подписывает токен сессии для пользователя.
func (a *AuthMiddleware) IssueToken(u *model.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(sessionTTL)
	claims := &Claims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expires, nil
}

// SetSessionCookie устанавливает cookie сессии и возвращает выданный токен.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, u *model.User) (string, error) {
	token, expires, err := a.IssueToken(u)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// ClearSessionCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) parseToken(raw string) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secretKey, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(claims.Subject)
}

// sessionToken берёт токен из cookie, а для мобильных клиентов из заголовка Authorization.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Session определяет пользователя по токену и кладёт его в контекст. Запросы без сессии пропускаются дальше.
func (a *AuthMiddleware) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := sessionToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.parseToken(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.resolver.CurrentUser(r.Context(), id)
		if err != nil {
			if !errors.Is(err, model.ErrUnauthenticated) {
				a.logger.Error("resolve session user", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireRole пропускает только аутентифицированных пользователей с одной из ролей.
// Без ролей достаточно любой действующей сессии.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if len(roles) > 0 && !user.Role.OneOf(roles...) {
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PageGuard ограничивает доступ к страницам по роли. Вместо 403 пользователь
// перенаправляется на вход или на стартовую страницу своей роли.
func PageGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if publicPages[path] {
			next.ServeHTTP(w, r)
			return
		}

		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, "/sign-in", http.StatusFound)
			return
		}
		if !user.Role.CanVisit(path) {
			http.Redirect(w, r, user.Role.LandingPage(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser возвращает контекст с пользователем сессии.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext извлекает пользователя сессии из контекста запроса.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
