// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/shopledger/shopledger/internal/ledger"
)

// Sentinel errors for the store and service layers.
var (
	// ErrNotFound indicates a missing product or sale.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates an insert with an id that already exists.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConstraint indicates a referential constraint violation, such as a
	// sale pointing at an unknown product.
	ErrConstraint = errors.New("constraint violation")
	// ErrValidation indicates malformed request input.
	ErrValidation = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Every
// mutating operation surfaces an explicit outcome with a human-readable
// message; nothing is silently swallowed.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConstraint):
		Problem(w, http.StatusConflict, "Constraint Violation", err.Error())
	case errors.Is(err, ledger.ErrInvalidQuantity):
		Problem(w, http.StatusBadRequest, "Invalid Quantity", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrPartialApplication):
		Problem(w, http.StatusInternalServerError, "Partial Application", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Storage Error", "")
	}
}
