package sales

import (
	"github.com/shopspring/decimal"
)

// Sale records one transaction against a product. Amount is the unit price
// captured at sale time so later product price edits never rewrite history;
// Total is stored explicitly for the same reason. Date and Time are captured
// at insert and immutable afterward.
type Sale struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Quantity  int64           `json:"quantity"`
	ByUnit    bool            `json:"by_unit"`
	Total     decimal.Decimal `json:"total"`
	Date      string          `json:"date"`
	Time      string          `json:"time"`
}

// EmptySale is the placeholder value used before a sale is captured. A plain
// constant value, not a factory.
var EmptySale = Sale{}

// Wire formats for Sale.Date and Sale.Time. ISO forms keep lexicographic
// and chronological order identical, which the range query relies on.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// CreateSaleRequest captures a new sale. ByUnit defaults to true when
// omitted, matching the behaviour before flat-price sales existed. Date and
// Time default to the moment of insertion.
type CreateSaleRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Quantity  int64           `json:"quantity" validate:"required"`
	ByUnit    *bool           `json:"by_unit"`
	Date      string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time      string          `json:"time" validate:"omitempty,datetime=15:04:05"`

	// IdempotencyKey, when set, dedupes client retries of the same insert.
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,uuid4"`
}

// UpdateSaleRequest edits an existing sale. OldQuantity is the quantity the
// caller last observed; the stock delta is reconciled against it.
type UpdateSaleRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Quantity    int64           `json:"quantity" validate:"required"`
	ByUnit      *bool           `json:"by_unit"`
	OldQuantity int64           `json:"old_quantity" validate:"gte=1"`
}

// ListFilter bounds a sale listing to one product and an inclusive date range.
type ListFilter struct {
	ProductID int64
	StartDate string
	EndDate   string
}
