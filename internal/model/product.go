package model

import (
	"time"

	"github.com/google/uuid"
)

// ProductStatus описывает статус товара.
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusInactive   ProductStatus = "inactive"
	ProductStatusOutOfStock ProductStatus = "out-of-stock"
)

// Valid сообщает, является ли статус допустимым.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusOutOfStock:
		return true
	}
	return false
}

// DeriveStatus вычисляет статус товара по остатку: нулевой остаток всегда даёт out-of-stock,
// а пополнение товара, которого не было в наличии, возвращает его в active.
func DeriveStatus(current ProductStatus, stock int) ProductStatus {
	if stock <= 0 {
		return ProductStatusOutOfStock
	}
	if current == ProductStatusOutOfStock || current == "" {
		return ProductStatusActive
	}
	return current
}

// Product описывает товар на складе.
type Product struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	SKU         string        `json:"sku"`
	Description string        `json:"description"`
	Price       float64       `json:"price"`
	Stock       int           `json:"stock"`
	Category    string        `json:"category"`
	Status      ProductStatus `json:"status"`
	CreatedBy   Actor         `json:"createdBy"`
	UpdatedBy   Actor         `json:"updatedBy"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ProductFilter задаёт параметры выборки товаров.
type ProductFilter struct {
	Search   string
	Category string
	Status   ProductStatus
}

// Category описывает категорию товаров.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy Actor     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaleType описывает способ продажи.
type SaleType string

// SaleTypeDirect — продажа со склада без доставки.
const SaleTypeDirect SaleType = "direct"

// SaleStatusCompleted — завершённая продажа.
const SaleStatusCompleted = "completed"

// ProductHistory — запись журнала продаж товара.
type ProductHistory struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"productId"`
	QuantitySold int       `json:"quantitySold"`
	UnitPrice    float64   `json:"unitPrice"`
	TotalAmount  float64   `json:"totalAmount"`
	SaleDate     time.Time `json:"saleDate"`
	SoldBy       Actor     `json:"soldBy"`
	SaleType     SaleType  `json:"saleType"`
	Status       string    `json:"status"`
}

// Sale описывает результат прямой продажи.
type Sale struct {
	Product *Product        `json:"product"`
	History *ProductHistory `json:"history"`
}
