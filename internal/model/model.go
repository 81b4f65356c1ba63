// Package model содержит доменные сущности складского сервиса.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role описывает роль сотрудника.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCashier  Role = "cashier"
	RoleDelivery Role = "delivery"
	RoleUser     Role = "user"
)

// ParseRole возвращает роль по строковому значению и признак её допустимости.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleCashier, RoleDelivery, RoleUser:
		return r, true
	}
	return "", false
}

// OneOf сообщает, совпадает ли роль с одной из перечисленных.
func (r Role) OneOf(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// User описывает учётную запись сотрудника.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	Banned        bool      `json:"banned"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Actor фиксирует, кто создал или изменил запись.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

// ActorOf строит Actor из пользователя.
func ActorOf(u *User) Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// Driver хранит push-токен курьера.
type Driver struct {
	UserID    uuid.UUID `json:"userId"`
	FCMToken  string    `json:"fcmToken"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DriverProfile объединяет курьера и его push-токен.
type DriverProfile struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	FCMToken string    `json:"fcmToken,omitempty"`
}

// RateLimit описывает счётчик запросов для одного ключа.
type RateLimit struct {
	Key           string
	Count         int
	WindowStart   time.Time
	WindowSeconds int
}

// Location описывает барангай с координатами.
type Location struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Municipality string  `json:"municipality"`
	Province     string  `json:"province"`
	FullAddress  string  `json:"fullAddress"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}
