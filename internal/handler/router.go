package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/maxxi02/thesis-project01-sub001/internal/middleware"
	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware складского сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if h.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(custommiddleware.Recoverer(h.logger))
	r.Use(custommiddleware.Logger(h.logger))
	if h.metrics != nil {
		r.Use(custommiddleware.Metrics(h.metrics))
	}
	if len(h.corsOrigins) > 0 {
		r.Use(custommiddleware.NewCORS(h.corsOrigins))
	}
	r.Use(h.authMiddleware.Session)

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	if h.ws != nil {
		r.With(custommiddleware.RequireRole()).Handle("/ws", h.bindStream(h.ws))
	}

	r.Route("/api", func(r chi.Router) {
		if h.sse != nil {
			r.With(custommiddleware.RequireRole()).Handle("/sse", h.bindStream(h.sse))
		}

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.GzipMiddleware)
			h.apiRoutes(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(custommiddleware.PageGuard)

		r.Get("/", h.Page)
		r.Get("/sign-in", h.Page)
		r.Get("/sign-up", h.Page)
		for _, prefix := range model.PagePrefixes() {
			r.Get(prefix, h.Page)
			r.Get(prefix+"/*", h.Page)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}

func (h *Handler) apiRoutes(r chi.Router) {
	staff := custommiddleware.RequireRole(model.RoleAdmin, model.RoleCashier)
	couriers := custommiddleware.RequireRole(model.RoleAdmin, model.RoleCashier, model.RoleDelivery)
	admin := custommiddleware.RequireRole(model.RoleAdmin)
	authenticated := custommiddleware.RequireRole()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-up", h.SignUp)
		r.Post("/sign-in", h.SignIn)
		r.Post("/sign-out", h.SignOut)
		r.Post("/verify-email", h.VerifyEmail)
		r.With(authenticated).Get("/session", h.Session)
	})

	r.Post("/check-rate-limit", h.CheckRateLimit)
	r.Post("/increment-rate-limit", h.IncrementRateLimit)
	r.With(admin).Post("/clear-rate-limit", h.ClearRateLimit)

	r.Group(func(r chi.Router) {
		r.Use(admin)
		r.Get("/users", h.ListUsers)
		r.Patch("/users/{id}/role", h.ChangeRole)
		r.Patch("/users/{id}/ban", h.SetBanned)
		r.Post("/deliveries/auto-cleanup", h.AutoCleanup)
		r.Delete("/products/{id}", h.DeleteProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(staff)
		r.Get("/categories", h.ListCategories)
		r.Post("/categories", h.CreateCategory)

		r.Get("/products", h.ListProducts)
		r.Post("/products", h.CreateProduct)
		r.Get("/products/{id}", h.GetProduct)
		r.Put("/products/{id}", h.UpdateProduct)
		r.Patch("/products/{id}", h.UpdateProduct)
		r.Post("/products/{id}/sold", h.SellProduct)
		r.Get("/products/{id}/history", h.ProductHistory)

		r.Post("/toship", h.AssignShipment)
		r.Get("/drivers", h.ListDrivers)
		r.Get("/deliveries/track-deliveries", h.TrackDeliveries)
		r.Post("/notifications/newShipment", h.NotifyNewShipment)
	})

	r.Group(func(r chi.Router) {
		r.Use(couriers)
		r.Get("/deliveries/assigned", h.AssignedDeliveries)
		r.Get("/deliveries/archived/list", h.ArchivedDeliveries)
		r.Get("/deliveries/archived/count", h.ArchivedCount)
		r.Patch("/toship/{id}/status", h.UpdateDeliveryStatus)
		r.Post("/notifications/delivery-started", h.DeliveryStarted)
		r.Post("/notifications/status-update", h.StatusUpdate)
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/notifications", h.ListNotifications)
		r.Patch("/notifications", h.MarkNotificationsRead)
		r.Get("/drivers/{userId}", h.GetDriver)
		r.Put("/drivers/{userId}", h.UpdateDriver)
		r.Post("/locations/coordinates", h.Coordinates)
	})
}
