package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus описывает этап доставки.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusInTransit DeliveryStatus = "in-transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending:   {DeliveryStatusInTransit, DeliveryStatusCancelled},
	DeliveryStatusInTransit: {DeliveryStatusDelivered, DeliveryStatusCancelled},
}

// Valid сообщает, является ли статус допустимым.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// CanTransition проверяет допустимость перехода между статусами доставки.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Personnel описывает курьера, назначенного на доставку.
type Personnel struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email"`
	FCMToken string    `json:"fcmToken,omitempty"`
}

// Marker описывает сотрудника, оформившего или закрывшего доставку.
type Marker struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// MarkerOf строит Marker из пользователя.
func MarkerOf(u *User) Marker {
	return Marker{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Coordinates — точка назначения доставки.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ToShip описывает активную доставку.
type ToShip struct {
	ID                uuid.UUID      `json:"id"`
	ProductID         uuid.UUID      `json:"productId"`
	ProductName       string         `json:"productName"`
	Quantity          int            `json:"quantity"`
	DeliveryPersonnel Personnel      `json:"deliveryPersonnel"`
	Destination       string         `json:"destination"`
	Coordinates       *Coordinates   `json:"coordinates,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	Status            DeliveryStatus `json:"status"`
	MarkedBy          Marker         `json:"markedBy"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time     `json:"cancelledAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	Notifications     []Notification `json:"notifications"`
}

// Stamp переводит доставку в новый статус и проставляет соответствующие отметки времени.
func (t *ToShip) Stamp(next DeliveryStatus, at time.Time) {
	t.Status = next
	t.UpdatedAt = at
	switch next {
	case DeliveryStatusInTransit:
		t.StartedAt = &at
	case DeliveryStatusDelivered:
		t.DeliveredAt = &at
	case DeliveryStatusCancelled:
		t.CancelledAt = &at
	}
	if next.Terminal() {
		t.CompletedAt = &at
	}
}

// NotificationType описывает вид уведомления о доставке.
type NotificationType string

const (
	NotificationNewShipment     NotificationType = "new-shipment"
	NotificationDeliveryStarted NotificationType = "delivery-started"
	NotificationStatusUpdate    NotificationType = "status-update"
)

// Notification — уведомление, привязанное к доставке.
type Notification struct {
	ID             uuid.UUID        `json:"id"`
	ToShipID       uuid.UUID        `json:"toShipId"`
	RecipientEmail string           `json:"recipientEmail"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Read           bool             `json:"read"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// StatusNotifications строит уведомления о текущем статусе доставки для курьера и оформившего её сотрудника.
func (t *ToShip) StatusNotifications(at time.Time) []Notification {
	typ := NotificationStatusUpdate
	title := "Delivery status updated"
	if t.Status == DeliveryStatusInTransit {
		typ = NotificationDeliveryStarted
		title = "Delivery started"
	}
	message := fmt.Sprintf("%s (x%d) to %s is now %s", t.ProductName, t.Quantity, t.Destination, t.Status)

	recipients := []string{t.DeliveryPersonnel.Email}
	if t.MarkedBy.Email != "" && !strings.EqualFold(t.MarkedBy.Email, t.DeliveryPersonnel.Email) {
		recipients = append(recipients, t.MarkedBy.Email)
	}

	res := make([]Notification, 0, len(recipients))
	for _, email := range recipients {
		res = append(res, Notification{
			ID:             uuid.New(),
			ToShipID:       t.ID,
			RecipientEmail: strings.ToLower(email),
			Type:           typ,
			Title:          title,
			Message:        message,
			CreatedAt:      at,
		})
	}
	return res
}

// NotificationPage — страница уведомлений пользователя.
type NotificationPage struct {
	Items       []Notification `json:"notifications"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unreadCount"`
	Page        int            `json:"page"`
	Limit       int            `json:"limit"`
}

// ArchivedDelivery — неизменяемый снимок завершённой доставки.
type ArchivedDelivery struct {
	ID                uuid.UUID      `json:"id"`
	OriginalID        uuid.UUID      `json:"originalId"`
	ProductID         uuid.UUID      `json:"productId"`
	ProductName       string         `json:"productName"`
	Quantity          int            `json:"quantity"`
	Destination       string         `json:"destination"`
	DeliveryPersonnel Personnel      `json:"deliveryPersonnel"`
	Status            DeliveryStatus `json:"status"`
	MarkedBy          Marker         `json:"markedBy"`
	ClosedBy          Marker         `json:"closedBy"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time     `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	ArchivedAt        time.Time      `json:"archivedAt"`
}

// ArchiveOf строит снимок доставки для архива.
func ArchiveOf(t *ToShip, closedBy Marker, at time.Time) *ArchivedDelivery {
	return &ArchivedDelivery{
		ID:                uuid.New(),
		OriginalID:        t.ID,
		ProductID:         t.ProductID,
		ProductName:       t.ProductName,
		Quantity:          t.Quantity,
		Destination:       t.Destination,
		DeliveryPersonnel: t.DeliveryPersonnel,
		Status:            t.Status,
		MarkedBy:          t.MarkedBy,
		ClosedBy:          closedBy,
		StartedAt:         t.StartedAt,
		DeliveredAt:       t.DeliveredAt,
		CancelledAt:       t.CancelledAt,
		CreatedAt:         t.CreatedAt,
		ArchivedAt:        at,
	}
}

// ArchivedPage — страница архивных доставок.
type ArchivedPage struct {
	Items []ArchivedDelivery `json:"deliveries"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// CleanupResult — итог очистки завершённых доставок.
type CleanupResult struct {
	Archived int64 `json:"archived"`
	Deleted  int64 `json:"deleted"`
}
