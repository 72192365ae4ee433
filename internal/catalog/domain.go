package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stocked item for sale. Stock is the number of unsold units
// and is never observably negative after a committed operation.
// InitialStock is the reconciliation base: at all times
// stock == initial_stock - SUM(quantity of existing sales).
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Stock        int64           `json:"stock"`
	InitialStock int64           `json:"-"`
	Price        decimal.Decimal `json:"price"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateProductRequest carries the fields for a new product. The initial
// stock is chosen by the user.
type CreateProductRequest struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Stock int64           `json:"stock" validate:"gte=0"`
	Price decimal.Decimal `json:"price"`
}

// UpdateProductRequest edits name, stock and price. Editing stock rebases
// the reconciliation base so existing sales stay accounted for.
type UpdateProductRequest struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Stock int64           `json:"stock" validate:"gte=0"`
	Price decimal.Decimal `json:"price"`
}
