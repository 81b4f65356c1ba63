package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/location"
	"github.com/maxxi02/thesis-project01-sub001/internal/middleware"
	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/notify"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

type stubService struct {
	users map[uuid.UUID]*model.User

	pingErr error

	signInUser *model.User
	signInErr  error
	allowErr   error
	allowKeys  []string
	emailFound bool

	product    *model.Product
	productErr error
	createErr  error
	sale       *model.Sale
	sellErr    error

	toShip       *model.ToShip
	toShipErr    error
	already      bool
	rateStatus   *model.RateLimitStatus
	rateErr      error
	lastStatus   string
	lastQuantity int
}

func (s *stubService) CurrentUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, model.ErrUnauthenticated
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) SignUp(ctx context.Context, in model.SignUpInput) (*model.User, error) {
	return &model.User{ID: uuid.New(), Email: in.Email, Role: model.RoleUser}, nil
}

func (s *stubService) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	return s.signInUser, s.signInErr
}

func (s *stubService) VerifyEmail(ctx context.Context, email string) (bool, error) {
	return s.emailFound, nil
}

func (s *stubService) ListUsers(ctx context.Context) ([]model.User, error) { return []model.User{}, nil }

func (s *stubService) ChangeRole(ctx context.Context, by *model.User, rawID, role string) (*model.User, error) {
	return &model.User{}, nil
}

func (s *stubService) SetBanned(ctx context.Context, by *model.User, rawID string, banned bool) (*model.User, error) {
	return &model.User{Banned: banned}, nil
}

func (s *stubService) ListCategories(ctx context.Context, search string) ([]model.Category, error) {
	return nil, nil
}

func (s *stubService) CreateCategory(ctx context.Context, by *model.User, name string) (*model.Category, error) {
	return &model.Category{ID: uuid.New(), Name: name}, nil
}

func (s *stubService) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	return nil, nil
}

func (s *stubService) GetProduct(ctx context.Context, rawID string) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) CreateProduct(ctx context.Context, by *model.User, in model.ProductInput) (*model.Product, error) {
	return s.product, s.createErr
}

func (s *stubService) UpdateProduct(ctx context.Context, by *model.User, rawID string, patch model.ProductPatch) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) DeleteProduct(ctx context.Context, rawID string) error { return s.productErr }

func (s *stubService) SellProduct(ctx context.Context, by *model.User, rawID string, quantity int) (*model.Sale, error) {
	s.lastQuantity = quantity
	return s.sale, s.sellErr
}

func (s *stubService) ProductHistory(ctx context.Context, rawID string) ([]model.ProductHistory, error) {
	return nil, s.productErr
}

func (s *stubService) AssignShipment(ctx context.Context, by *model.User, in model.ShipmentInput) (*model.ToShip, error) {
	return s.toShip, s.toShipErr
}

func (s *stubService) UpdateDeliveryStatus(ctx context.Context, by *model.User, rawID, status string) (*model.ToShip, error) {
	s.lastStatus = status
	return s.toShip, s.toShipErr
}

func (s *stubService) StartDelivery(ctx context.Context, by *model.User, rawID string) (*model.ToShip, bool, error) {
	return s.toShip, s.already, s.toShipErr
}

func (s *stubService) NotifyNewShipment(ctx context.Context, by *model.User, rawID string) (bool, error) {
	return false, s.toShipErr
}

func (s *stubService) AssignedDeliveries(ctx context.Context, by *model.User, email, status string) ([]model.ToShip, error) {
	return nil, nil
}

func (s *stubService) TrackDeliveries(ctx context.Context, rawID string) ([]model.ToShip, error) {
	return nil, nil
}

func (s *stubService) ArchivedDeliveries(ctx context.Context, by *model.User, email string, page, limit int) (*model.ArchivedPage, error) {
	return &model.ArchivedPage{Page: page, Limit: limit}, nil
}

func (s *stubService) ArchivedCount(ctx context.Context, by *model.User, email string) (int, error) {
	return 3, nil
}

func (s *stubService) CleanupDeliveries(ctx context.Context) (*model.CleanupResult, error) {
	return &model.CleanupResult{}, nil
}

func (s *stubService) ListNotifications(ctx context.Context, by *model.User, page, limit int, unreadOnly bool) (*model.NotificationPage, error) {
	return &model.NotificationPage{Items: []model.Notification{}, Page: page, Limit: limit}, nil
}

func (s *stubService) MarkNotificationsRead(ctx context.Context, by *model.User, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func (s *stubService) ListDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	return []model.DriverProfile{}, nil
}

func (s *stubService) GetDriver(ctx context.Context, by *model.User, rawUserID string) (*model.Driver, error) {
	return nil, &model.NotFoundError{Entity: "Driver"}
}

func (s *stubService) UpdateDriverToken(ctx context.Context, by *model.User, rawUserID, token string) (*model.Driver, error) {
	return nil, model.ErrForbidden
}

func (s *stubService) CheckRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error) {
	return s.rateStatus, s.rateErr
}

func (s *stubService) IncrementRateLimit(ctx context.Context, in model.RateLimitInput) (*model.RateLimitStatus, error) {
	return s.rateStatus, s.rateErr
}

func (s *stubService) ClearRateLimit(ctx context.Context, key string) error { return nil }

func (s *stubService) Allow(ctx context.Context, key string, windowSeconds, maxRequests int) error {
	s.allowKeys = append(s.allowKeys, key)
	return s.allowErr
}

type stubLocator struct {
	match *location.Match
	err   error
}

func (l *stubLocator) Lookup(ctx context.Context, address string) (*location.Match, error) {
	return l.match, l.err
}

type testServer struct {
	handler http.Handler
	auth    *middleware.AuthMiddleware
	svc     *stubService
}

func newTestServer(t *testing.T, svc *stubService, opts ...Option) *testServer {
	t.Helper()

	if svc.users == nil {
		svc.users = map[uuid.UUID]*model.User{}
	}
	logger := zap.NewNop()
	auth := middleware.NewAuthMiddleware("test-secret", svc, logger)
	h := NewHandler(svc, &stubLocator{err: &model.NotFoundError{Entity: "Location"}}, logger, auth, opts...)
	return &testServer{handler: h.SetupRouter(), auth: auth, svc: svc}
}

// do выполняет запрос от имени пользователя с ролью role; пустая роль означает анонимный запрос.
func (s *testServer) do(t *testing.T, role model.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if role != "" {
		u := &model.User{ID: uuid.New(), Name: "Test", Email: string(role) + "@example.com", Role: role}
		s.svc.users[u.ID] = u
		token, _, err := s.auth.IssueToken(u)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var res map[string]any
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return res
}

func TestCreateProduct_ValidationError(t *testing.T) {
	srv := newTestServer(t, &stubService{
		createErr: validation.New("name is required", "price must be at least 0"),
	})

	w := srv.do(t, model.RoleAdmin, http.MethodPost, "/api/products", map[string]any{"price": -1})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeBody(t, w)["error"]; got != "name is required, price must be at least 0" {
		t.Fatalf("error = %v", got)
	}
}

func TestCreateProduct_Created(t *testing.T) {
	srv := newTestServer(t, &stubService{
		product: &model.Product{ID: uuid.New(), SKU: "RICE-25", Status: model.ProductStatusActive},
	})

	w := srv.do(t, model.RoleCashier, http.MethodPost, "/api/products", map[string]any{"name": "Rice"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := decodeBody(t, w)["sku"]; got != "RICE-25" {
		t.Fatalf("sku = %v", got)
	}
}

func TestSellProduct_InsufficientStock(t *testing.T) {
	svc := &stubService{sellErr: &model.InsufficientStockError{Available: 2, Requested: 5}}
	srv := newTestServer(t, svc)

	w := srv.do(t, model.RoleCashier, http.MethodPost, "/api/products/"+uuid.NewString()+"/sold", map[string]int{"quantity": 5})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeBody(t, w)["error"]; got != "Insufficient stock. Available: 2, Requested: 5" {
		t.Fatalf("error = %v", got)
	}
	if svc.lastQuantity != 5 {
		t.Fatalf("quantity = %d, want 5", svc.lastQuantity)
	}
}

func TestGetProduct_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "not found", err: &model.NotFoundError{Entity: "Product"}, status: http.StatusNotFound, message: "Product not found"},
		{name: "invalid id", err: model.ErrInvalidID, status: http.StatusBadRequest, message: "Invalid id"},
		{name: "internal", err: errors.New("connection refused"), status: http.StatusInternalServerError, message: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubService{productErr: tt.err})

			w := srv.do(t, model.RoleAdmin, http.MethodGet, "/api/products/abc", nil)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := decodeBody(t, w)["error"]; got != tt.message {
				t.Fatalf("error = %v, want %q", got, tt.message)
			}
		})
	}
}

func TestAPIRoleChecks(t *testing.T) {
	srv := newTestServer(t, &stubService{product: &model.Product{}})

	tests := []struct {
		name   string
		role   model.Role
		method string
		path   string
		status int
	}{
		{name: "anonymous", method: http.MethodGet, path: "/api/products", status: http.StatusUnauthorized},
		{name: "delivery cannot create products", role: model.RoleDelivery, method: http.MethodPost, path: "/api/products", status: http.StatusForbidden},
		{name: "cashier cannot delete products", role: model.RoleCashier, method: http.MethodDelete, path: "/api/products/" + uuid.NewString(), status: http.StatusForbidden},
		{name: "admin deletes products", role: model.RoleAdmin, method: http.MethodDelete, path: "/api/products/" + uuid.NewString(), status: http.StatusOK},
		{name: "delivery sees assigned", role: model.RoleDelivery, method: http.MethodGet, path: "/api/deliveries/assigned", status: http.StatusOK},
		{name: "user cannot see assigned", role: model.RoleUser, method: http.MethodGet, path: "/api/deliveries/assigned", status: http.StatusForbidden},
		{name: "only admin manages users", role: model.RoleCashier, method: http.MethodGet, path: "/api/users", status: http.StatusForbidden},
		{name: "any role reads notifications", role: model.RoleUser, method: http.MethodGet, path: "/api/notifications", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, tt.role, tt.method, tt.path, map[string]string{})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestPageRedirects(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	tests := []struct {
		name     string
		role     model.Role
		path     string
		status   int
		location string
	}{
		{name: "public sign-in", path: "/sign-in", status: http.StatusOK},
		{name: "anonymous dashboard", path: "/dashboard", status: http.StatusFound, location: "/sign-in"},
		{name: "delivery on dashboard", role: model.RoleDelivery, path: "/dashboard", status: http.StatusFound, location: "/deliveries/overview"},
		{name: "cashier on pos", role: model.RoleCashier, path: "/pos", status: http.StatusOK},
		{name: "user on inventory", role: model.RoleUser, path: "/inventory/items", status: http.StatusFound, location: "/welcome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, tt.role, http.MethodGet, tt.path, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if loc := w.Header().Get("Location"); loc != tt.location {
				t.Fatalf("location = %q, want %q", loc, tt.location)
			}
		})
	}
}

func TestIncrementRateLimit_TooManyRequests(t *testing.T) {
	srv := newTestServer(t, &stubService{rateErr: &model.RateLimitedError{RetryAfter: 42}})

	w := srv.do(t, "", http.MethodPost, "/api/increment-rate-limit", model.RateLimitInput{Key: "k", WindowSeconds: 60, Max: 5})

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if ra := w.Header().Get("Retry-After"); ra != "42" {
		t.Fatalf("Retry-After = %q, want 42", ra)
	}
	body := decodeBody(t, w)
	if body["allowed"] != false || body["retryAfter"] != float64(42) {
		t.Fatalf("unexpected body %v", body)
	}
	if body["error"] != "Too many requests. Try again in 42 seconds" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestCheckRateLimit_Allowed(t *testing.T) {
	srv := newTestServer(t, &stubService{rateStatus: &model.RateLimitStatus{Allowed: true, Remaining: 4}})

	w := srv.do(t, "", http.MethodPost, "/api/check-rate-limit", model.RateLimitInput{Key: "k", WindowSeconds: 60, Max: 5})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["allowed"] != true || body["remaining"] != float64(4) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyEmail(t *testing.T) {
	srv := newTestServer(t, &stubService{emailFound: true})

	w := srv.do(t, "", http.MethodPost, "/api/auth/verify-email", map[string]string{"email": "A@B.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if decodeBody(t, w)["exists"] != true {
		t.Fatalf("exists must be true")
	}

	srv.svc.allowErr = &model.RateLimitedError{RetryAfter: 10}
	w = srv.do(t, "", http.MethodPost, "/api/auth/verify-email", map[string]string{"email": "A@B.com"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestSignIn(t *testing.T) {
	user := &model.User{ID: uuid.New(), Email: "cashier@example.com", Role: model.RoleCashier}
	srv := newTestServer(t, &stubService{signInUser: user})

	w := srv.do(t, "", http.MethodPost, "/api/auth/sign-in", credentialsRequest{Email: user.Email, Password: "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie not set: %+v", w.Result().Cookies())
	}

	srv.svc.signInUser, srv.svc.signInErr = nil, model.ErrInvalidCredentials
	w = srv.do(t, "", http.MethodPost, "/api/auth/sign-in", credentialsRequest{Email: user.Email, Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestStatusUpdate(t *testing.T) {
	svc := &stubService{toShip: &model.ToShip{ID: uuid.New(), Status: model.DeliveryStatusDelivered}}
	srv := newTestServer(t, svc)

	w := srv.do(t, model.RoleDelivery, http.MethodPost, "/api/notifications/status-update",
		toShipRequest{ToShipID: svc.toShip.ID.String(), Status: "delivered"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if svc.lastStatus != "delivered" {
		t.Fatalf("status passed to service = %q", svc.lastStatus)
	}

	svc.toShipErr = model.ErrInvalidTransition
	w = srv.do(t, model.RoleDelivery, http.MethodPost, "/api/notifications/status-update",
		toShipRequest{ToShipID: svc.toShip.ID.String(), Status: "pending"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeBody(t, w)["error"]; got != "Invalid status transition" {
		t.Fatalf("error = %v", got)
	}

	svc.toShipErr = model.ErrForbidden
	w = srv.do(t, model.RoleDelivery, http.MethodPost, "/api/notifications/status-update",
		toShipRequest{ToShipID: svc.toShip.ID.String(), Status: "cancelled"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestDeliveryStarted_AlreadyStarted(t *testing.T) {
	srv := newTestServer(t, &stubService{
		toShip:  &model.ToShip{ID: uuid.New(), Status: model.DeliveryStatusInTransit},
		already: true,
	})

	w := srv.do(t, model.RoleDelivery, http.MethodPost, "/api/notifications/delivery-started", toShipRequest{ToShipID: uuid.NewString()})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if decodeBody(t, w)["alreadyStarted"] != true {
		t.Fatalf("alreadyStarted must be true")
	}
}

func TestCoordinates_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	w := srv.do(t, model.RoleAdmin, http.MethodPost, "/api/locations/coordinates", coordinatesRequest{Address: "Nowhere"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := decodeBody(t, w)["error"]; got != "Location not found" {
		t.Fatalf("error = %v", got)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	if w := srv.do(t, "", http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	srv.svc.pingErr = errors.New("db down")
	if w := srv.do(t, "", http.MethodGet, "/health", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

type recordingStream struct {
	userID    string
	userEmail string
	calls     int
}

func (s *recordingStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls++
	s.userID, s.userEmail, _ = notify.StreamParams(r)
	w.WriteHeader(http.StatusOK)
}

func TestStreams_BoundToSession(t *testing.T) {
	sse, ws := &recordingStream{}, &recordingStream{}
	srv := newTestServer(t, &stubService{}, WithStreams(sse, ws))

	tests := []struct {
		name       string
		role       model.Role
		path       string
		wantStatus int
	}{
		{name: "anonymous sse", path: "/api/sse?userId=1&userEmail=victim@example.com", wantStatus: http.StatusUnauthorized},
		{name: "anonymous ws", path: "/ws?userId=1&userEmail=victim@example.com", wantStatus: http.StatusUnauthorized},
		{name: "foreign email", role: model.RoleDelivery, path: "/api/sse?userEmail=victim@example.com", wantStatus: http.StatusForbidden},
		{name: "foreign user id", role: model.RoleDelivery, path: "/ws?userId=" + uuid.NewString(), wantStatus: http.StatusForbidden},
		{name: "own email, different case", role: model.RoleDelivery, path: "/api/sse?userEmail=DELIVERY@example.com", wantStatus: http.StatusOK},
		{name: "no params", role: model.RoleCashier, path: "/ws", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := srv.do(t, tt.role, http.MethodGet, tt.path, nil); w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	if sse.calls != 1 || ws.calls != 1 {
		t.Fatalf("stream calls sse=%d ws=%d, want 1 and 1", sse.calls, ws.calls)
	}
	if sse.userEmail != "delivery@example.com" || sse.userID == "" {
		t.Fatalf("sse bound to %q/%q, want session user", sse.userID, sse.userEmail)
	}
	if ws.userEmail != "cashier@example.com" {
		t.Fatalf("ws bound to %q, want cashier@example.com", ws.userEmail)
	}
}

func TestAuthLimiterIgnoresForwardedFor(t *testing.T) {
	srv := newTestServer(t, &stubService{emailFound: true})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-email", strings.NewReader(`{"email":"a@b.com"}`))
		req.RemoteAddr = "192.0.2.10:5555"
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		srv.handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	}

	want := []string{"verify-email:192.0.2.10", "verify-email:192.0.2.10"}
	if strings.Join(srv.svc.allowKeys, ",") != strings.Join(want, ",") {
		t.Fatalf("limiter keys = %v, want %v", srv.svc.allowKeys, want)
	}
}

func TestMalformedJSON(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/check-rate-limit", strings.NewReader("{"))
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
