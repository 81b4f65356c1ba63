// Package handler содержит HTTP-обработчики API складского сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/location"
	"github.com/maxxi02/thesis-project01-sub001/internal/metrics"
	"github.com/maxxi02/thesis-project01-sub001/internal/middleware"
	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	SignUp(ctx context.Context, in model.SignUpInput) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*model.User, error)
	VerifyEmail(ctx context.Context, email string) (bool, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ChangeRole(ctx context.Context, by *model.User, rawID, role string) (*model.User, error)
	SetBanned(ctx context.Context, by *model.User, rawID string, banned bool) (*model.User, error)

	ListCategories(ctx context.Context, search string) ([]model.Category, error)
	CreateCategory(ctx context.Context, by *model.User, name string) (*model.Category, error)
	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, rawID string) (*model.Product, error)
	CreateProduct(ctx context.Context, by *model.User, in model.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, by *model.User, rawID string, patch model.ProductPatch) (*model.Product, error)
	DeleteProduct(ctx context.Context, rawID string) error
	SellProduct(ctx context.Context, by *model.User, rawID string, quantity int) (*model.Sale, error)
	ProductHistory(ctx context.Context, rawID string) ([]model.ProductHistory, error)

	AssignShipment(ctx context.Context, by *model.User, in model.ShipmentInput) (*model.ToShip, error)
	UpdateDeliveryStatus(ctx context.Context, by *model.User, rawID, status string) (*model.ToShip, error)
	StartDelivery(ctx context.Context, by *model.User, rawID string) (*model.ToShip, bool, error)
	NotifyNewShipment(ctx context.Context, by *model.User, rawID string) (bool, error)
	AssignedDeliveries(ctx context.Context, by *model.User, email, status string) ([]model.ToShip, error)
	TrackDeliveries(ctx context.Context, rawID string) ([]model.ToShip, error)
	ArchivedDeliveries(ctx context.Context, by *model.User, email string, page, limit int) (*model.ArchivedPage, error)
	ArchivedCount(ctx context.Context, by *model.User, email string) (int, error)
	CleanupDeliveries(ctx context.Context) (*model.CleanupResult, error)

	ListNotifications(ctx context.Context, by *model.User, page, limit int, unreadOnly bool) (*model.NotificationPage, error)
	MarkNotificationsRead(ctx context.Context, by *model.User, ids []string) (int64, error)

	ListDrivers(ctx context.Context) ([]model.DriverProfile, error)
	GetDriver(ctx context.Context, by *model.User, rawUserID string) (*model.Driver, error)
	UpdateDriverToken(ctx context.Context, by *model.User, rawUserID, token string) (*model.Driver, error)

	CheckRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error)
	IncrementRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error)
	ClearRateLimit(ctx context.Context, key string) error
	Allow(ctx context.Context, key string, windowSeconds, maxRequests int) error
}

// Locator ищет координаты барангая по адресу.
type Locator interface {
	Lookup(ctx context.Context, address string) (*location.Match, error)
}

// Handler реализует HTTP-обработчики API складского сервиса.
type Handler struct {
	service        Service
	locator        Locator
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware

	sse         http.Handler
	ws          http.Handler
	metrics     *metrics.Metrics
	corsOrigins []string
	trustProxy  bool
	pages       *template.Template
}

// Option настраивает Handler.
type Option func(*Handler)

// WithStreams подключает транспорты уведомлений SSE и WebSocket.
func WithStreams(sse, ws http.Handler) Option {
	return func(h *Handler) {
		h.sse = sse
		h.ws = ws
	}
}

// WithMetrics включает сбор метрик запросов и маршрут /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithCORS разрешает кросс-доменные запросы с указанных источников.
func WithCORS(origins []string) Option {
	return func(h *Handler) { h.corsOrigins = origins }
}

// WithTrustedProxy берёт адрес клиента из X-Forwarded-For и X-Real-IP.
// Включается только за доверенным прокси.
func WithTrustedProxy() Option {
	return func(h *Handler) { h.trustProxy = true }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, locator Locator, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		locator:        locator,
		logger:         logger,
		authMiddleware: auth,
		pages:          pageTemplate,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	Allowed    bool   `json:"allowed"`
	RetryAfter int    `json:"retryAfter"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку бизнес-логики в HTTP-статус и тело {"error": ...}.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *validation.Error
		stockErr *model.InsufficientStockError
		limitErr *model.RateLimitedError
		notFound *model.NotFoundError
		conflict *model.ConflictError
	)
	status, message := 0, err.Error()

	switch {
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(limitErr.RetryAfter))
		respondJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
			Error:      limitErr.Error(),
			Allowed:    false,
			RetryAfter: limitErr.RetryAfter,
		})
		return
	case errors.Is(err, model.ErrUnauthenticated), errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.As(err, &verr), errors.As(err, &stockErr), errors.As(err, &conflict):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidTransition):
		status, message = http.StatusBadRequest, "Invalid status transition"
	case errors.Is(err, model.ErrInvalidID):
		status, message = http.StatusBadRequest, "Invalid id"
	case errors.Is(err, model.ErrConflict):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		status, message = http.StatusInternalServerError, "Internal server error"
	}

	respondJSON(w, status, errorResponse{Error: message})
}

// decodeJSON читает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return validation.New("Invalid JSON body")
}

func currentUser(r *http.Request) *model.User {
	u, _ := middleware.UserFromContext(r.Context())
	return u
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// Health проверяет доступность хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
