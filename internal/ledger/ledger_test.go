package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalByUnit(t *testing.T) {
	total := ComputeTotal(decimal.RequireFromString("2.50"), 4, true)
	require.True(t, total.Equal(decimal.RequireFromString("10.00")), "got %s", total)
}

func TestComputeTotalFlat(t *testing.T) {
	total := ComputeTotal(decimal.RequireFromString("15.00"), 4, false)
	require.True(t, total.Equal(decimal.RequireFromString("15.00")), "got %s", total)
}

func TestValidateInsert(t *testing.T) {
	require.NoError(t, ValidateInsert(3, 4))
	require.NoError(t, ValidateInsert(4, 4))
	require.ErrorIs(t, ValidateInsert(3, 1), ErrInsufficientStock)
	require.ErrorIs(t, ValidateInsert(0, 10), ErrInvalidQuantity)
	require.ErrorIs(t, ValidateInsert(-2, 10), ErrInvalidQuantity)
}

func TestReconcileStockDelta(t *testing.T) {
	require.Equal(t, int64(-3), ReconcileStockDelta(2, 5))
	require.Equal(t, int64(4), ReconcileStockDelta(5, 1))
	require.Equal(t, int64(0), ReconcileStockDelta(3, 3))
}

func TestValidateReconcile(t *testing.T) {
	require.NoError(t, ValidateReconcile(-3, 10))
	require.NoError(t, ValidateReconcile(4, 0))
	require.NoError(t, ValidateReconcile(0, 0))
	require.ErrorIs(t, ValidateReconcile(-3, 2), ErrInsufficientStock)
}

func TestExpectedStock(t *testing.T) {
	require.Equal(t, int64(7), ExpectedStock(10, 3))
	require.Equal(t, int64(10), ExpectedStock(10, 0))
}
