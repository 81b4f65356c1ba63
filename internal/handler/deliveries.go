package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

// AssignShipment резервирует товар и назначает доставку курьеру.
func (h *Handler) AssignShipment(w http.ResponseWriter, r *http.Request) {
	var in model.ShipmentInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	toShip, err := h.service.AssignShipment(r.Context(), currentUser(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toShip)
}

// AssignedDeliveries возвращает доставки курьера.
func (h *Handler) AssignedDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deliveries, err := h.service.AssignedDeliveries(r.Context(), currentUser(r), q.Get("email"), q.Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []model.ToShip{}
	}
	respondJSON(w, http.StatusOK, deliveries)
}

// TrackDeliveries возвращает все активные доставки либо одну по id.
func (h *Handler) TrackDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.service.TrackDeliveries(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []model.ToShip{}
	}
	respondJSON(w, http.StatusOK, deliveries)
}

// ArchivedDeliveries возвращает страницу архива курьера.
func (h *Handler) ArchivedDeliveries(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ArchivedDeliveries(r.Context(), currentUser(r), r.URL.Query().Get("email"),
		queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []model.ArchivedDelivery{}
	}
	respondJSON(w, http.StatusOK, page)
}

// ArchivedCount возвращает число архивных доставок курьера.
func (h *Handler) ArchivedCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ArchivedCount(r.Context(), currentUser(r), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// AutoCleanup удаляет доставки, завершённые более недели назад.
func (h *Handler) AutoCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CleanupDeliveries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type notificationsReadRequest struct {
	IDs []string `json:"ids"`
}

// ListNotifications возвращает уведомления текущего пользователя.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListNotifications(r.Context(), currentUser(r),
		queryInt(r, "page", 1), queryInt(r, "limit", 0), r.URL.Query().Get("unread") == "true")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// MarkNotificationsRead отмечает уведомления прочитанными; без ids отмечаются все.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req notificationsReadRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.service.MarkNotificationsRead(r.Context(), currentUser(r), req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

type toShipRequest struct {
	ToShipID string `json:"toShipId"`
	Status   string `json:"status"`
}

// NotifyNewShipment повторно уведомляет курьера о назначенной доставке.
func (h *Handler) NotifyNewShipment(w http.ResponseWriter, r *http.Request) {
	var req toShipRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	delivered, err := h.service.NotifyNewShipment(r.Context(), currentUser(r), req.ToShipID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true, "delivered": delivered})
}

// DeliveryStarted переводит доставку в статус in-transit.
func (h *Handler) DeliveryStarted(w http.ResponseWriter, r *http.Request) {
	var req toShipRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	toShip, already, err := h.service.StartDelivery(r.Context(), currentUser(r), req.ToShipID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"alreadyStarted": already,
		"delivery":       toShip,
	})
}

// StatusUpdate меняет статус доставки и уведомляет курьера и оформившего доставку.
func (h *Handler) StatusUpdate(w http.ResponseWriter, r *http.Request) {
	var req toShipRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.updateStatus(w, r, req.ToShipID, req.Status)
}

// UpdateDeliveryStatus меняет статус доставки по id из пути.
func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req toShipRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.updateStatus(w, r, chi.URLParam(r, "id"), req.Status)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, rawID, status string) {
	toShip, err := h.service.UpdateDeliveryStatus(r.Context(), currentUser(r), rawID, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toShip)
}

type driverTokenRequest struct {
	FCMToken string `json:"fcmToken"`
}

// ListDrivers возвращает курьеров с их push-токенами.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.service.ListDrivers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, drivers)
}

// GetDriver возвращает запись push-токена курьера.
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	driver, err := h.service.GetDriver(r.Context(), currentUser(r), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, driver)
}

// UpdateDriver сохраняет push-токен курьера.
func (h *Handler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	var req driverTokenRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	driver, err := h.service.UpdateDriverToken(r.Context(), currentUser(r), chi.URLParam(r, "userId"), req.FCMToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, driver)
}
