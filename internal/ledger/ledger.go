// Package ledger holds the pure stock/sales consistency rules. Every
// function here is side-effect free so the business contract can be tested
// without a store: product stock must always equal the initial stock minus
// the quantities of all sales that currently exist for the product.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity indicates a sale quantity below one.
var ErrInvalidQuantity = errors.New("ledger: quantity must be at least 1")

// ErrInsufficientStock indicates a decrement larger than the available stock.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// ErrPartialApplication indicates a sale write that committed without its
// paired stock write. It can only arise outside the transactional path
// (operator SQL, legacy data) and signals that reconciliation is advisable.
var ErrPartialApplication = errors.New("ledger: sale applied without stock adjustment")

// ComputeTotal derives the stored total of a sale. A by-unit sale scales the
// unit amount by quantity; a flat sale keeps the amount as-is regardless of
// quantity (e.g. a bulk-lot price).
func ComputeTotal(amount decimal.Decimal, quantity int64, byUnit bool) decimal.Decimal {
	if byUnit {
		return amount.Mul(decimal.NewFromInt(quantity))
	}
	return amount
}

// ReconcileStockDelta returns the signed stock adjustment for a sale whose
// quantity changes from oldQuantity to newQuantity. Positive means restock
// (fewer units sold than before), negative means sell more units.
func ReconcileStockDelta(oldQuantity, newQuantity int64) int64 {
	return oldQuantity - newQuantity
}

// ValidateInsert checks whether a new sale of the given quantity can be
// taken from the current stock.
func ValidateInsert(quantity, currentStock int64) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if quantity > currentStock {
		return ErrInsufficientStock
	}
	return nil
}

// ValidateReconcile checks an update delta against the available stock. Only
// a negative delta consumes stock; restocks are always allowed since stock
// has no upper bound.
func ValidateReconcile(delta, currentStock int64) error {
	if delta < 0 && -delta > currentStock {
		return ErrInsufficientStock
	}
	return nil
}

// ExpectedStock recomputes the stock a product should carry given its
// initial stock and the summed quantity of its existing sales. Used by the
// reconciliation job as the compensating action for drift.
func ExpectedStock(initialStock, soldQuantity int64) int64 {
	return initialStock - soldQuantity
}
