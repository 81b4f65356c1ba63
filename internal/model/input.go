package model

import (
	"math"
	"time"
)

// ProductInput — данные для создания товара.
type ProductInput struct {
	Name        string        `json:"name" validate:"required"`
	SKU         string        `json:"sku" validate:"required"`
	Description string        `json:"description"`
	Price       *float64      `json:"price" validate:"required,gte=0"`
	Stock       *int          `json:"stock" validate:"required,gte=0"`
	Category    string        `json:"category" validate:"required"`
	Status      ProductStatus `json:"status" validate:"omitempty,oneof=active inactive out-of-stock"`
}

// ProductPatch — частичное изменение товара, nil-поля не меняются.
type ProductPatch struct {
	Name        *string        `json:"name" validate:"omitempty,min=1"`
	SKU         *string        `json:"sku" validate:"omitempty,min=1"`
	Description *string        `json:"description"`
	Price       *float64       `json:"price" validate:"omitempty,gte=0"`
	Stock       *int           `json:"stock" validate:"omitempty,gte=0"`
	Category    *string        `json:"category" validate:"omitempty,min=1"`
	Status      *ProductStatus `json:"status" validate:"omitempty,oneof=active inactive out-of-stock"`
}

// PersonnelInput — курьер в запросе на отгрузку.
type PersonnelInput struct {
	ID       string `json:"id" validate:"required,uuid"`
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	FCMToken string `json:"fcmToken"`
}

// ShipmentInput — запрос на назначение отгрузки.
type ShipmentInput struct {
	ProductID         string         `json:"productId" validate:"required,uuid"`
	Quantity          int            `json:"quantity" validate:"gt=0"`
	DeliveryPersonnel PersonnelInput `json:"deliveryPersonnel"`
	Destination       string         `json:"destination" validate:"required"`
	Coordinates       *Coordinates   `json:"coordinates"`
	Notes             string         `json:"notes"`
}

// SignUpInput — данные регистрации.
type SignUpInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// RateLimitInput — параметры ограничения частоты запросов.
type RateLimitInput struct {
	Key           string `json:"key" validate:"required"`
	WindowSeconds int    `json:"windowSeconds" validate:"gt=0"`
	Max           int    `json:"max" validate:"gt=0"`
}

// RateLimitStatus — результат проверки лимита.
type RateLimitStatus struct {
	Allowed    bool `json:"allowed"`
	Remaining  int  `json:"remaining"`
	RetryAfter int  `json:"retryAfter,omitempty"`
}

// Expired сообщает, закончилось ли окно счётчика к моменту now.
func (rl *RateLimit) Expired(now time.Time) bool {
	return !now.Before(rl.WindowStart.Add(time.Duration(rl.WindowSeconds) * time.Second))
}

// RetryAfter возвращает остаток окна в целых секундах с округлением вверх.
func (rl *RateLimit) RetryAfter(now time.Time) int {
	left := rl.WindowStart.Add(time.Duration(rl.WindowSeconds) * time.Second).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
