package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID возвращается при некорректном идентификаторе.
	ErrInvalidID = errors.New("invalid id")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("already exists")
	// ErrInvalidTransition возвращается при недопустимой смене статуса доставки.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnauthenticated возвращается, если сессия отсутствует или недействительна.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden возвращается, если роли не хватает прав.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// InsufficientStockError возвращается, если запрошено больше, чем есть на складе.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", e.Available, e.Requested)
}

// ConflictError уточняет, какое значение нарушило уникальность.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Unwrap позволяет сравнивать ошибку с ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError уточняет, какая сущность не найдена.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

// Unwrap позволяет сравнивать ошибку с ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RateLimitedError возвращается при превышении лимита запросов.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Too many requests. Try again in %d seconds", e.RetryAfter)
}
