package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int             `json:"id"`
	StoreID   int             `json:"storeId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreateProductRequest struct {
	Name     string          `json:"name" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" binding:"gte=0"`
	IsActive *bool           `json:"isActive"`
}

// ProductView is a product as listed on the market, with its store name.
type ProductView struct {
	Product
	StoreName string `json:"storeName"`
}

// UpdateProductRequest carries the fields a prestataire may change. Omitted
// fields keep their current value.
type UpdateProductRequest struct {
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Stock    *int             `json:"stock"`
	IsActive *bool            `json:"isActive"`
}
