package sales

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/platform/httpx"
)

type memoryRepo struct {
	stocks map[int64]int64
	sales  map[int64]Sale
	nextID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[int64]int64), sales: make(map[int64]Sale)}
}

// WithTx snapshots state up front and restores it when fn fails, so a
// failing callback leaves the fake exactly as a rolled-back transaction
// would.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	stocks := make(map[int64]int64, len(r.stocks))
	for k, v := range r.stocks {
		stocks[k] = v
	}
	sales := make(map[int64]Sale, len(r.sales))
	for k, v := range r.sales {
		sales[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.stocks = stocks
		r.sales = sales
		return err
	}
	return nil
}

func (r *memoryRepo) ListByProductAndDateRange(ctx context.Context, filter ListFilter) ([]Sale, error) {
	var result []Sale
	for _, s := range r.sales {
		if s.ProductID != filter.ProductID {
			continue
		}
		if s.Date < filter.StartDate || s.Date > filter.EndDate {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].Time > result[j].Time
	})
	return result, nil
}

func (r *memoryRepo) TotalSales(ctx context.Context) (decimal.NullDecimal, error) {
	if len(r.sales) == 0 {
		return decimal.NullDecimal{}, nil
	}
	total := decimal.Zero
	for _, s := range r.sales {
		total = total.Add(s.Total)
	}
	return decimal.NewNullDecimal(total), nil
}

func (r *memoryRepo) TotalSalesByProduct(ctx context.Context, productID int64) (decimal.NullDecimal, error) {
	total := decimal.Zero
	found := false
	for _, s := range r.sales {
		if s.ProductID == productID {
			total = total.Add(s.Total)
			found = true
		}
	}
	if !found {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(total), nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	stock, ok := tx.repo.stocks[productID]
	if !ok {
		return 0, httpx.ErrNotFound
	}
	return stock, nil
}

func (tx *memoryTx) AdjustStock(ctx context.Context, productID, delta int64) error {
	if _, ok := tx.repo.stocks[productID]; !ok {
		return httpx.ErrNotFound
	}
	tx.repo.stocks[productID] += delta
	return nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	tx.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func (tx *memoryTx) UpdateSale(ctx context.Context, sale Sale) (int64, error) {
	existing, ok := tx.repo.sales[sale.ID]
	if !ok {
		return 0, nil
	}
	existing.Amount = sale.Amount
	existing.Quantity = sale.Quantity
	existing.ByUnit = sale.ByUnit
	existing.Total = sale.Total
	tx.repo.sales[sale.ID] = existing
	return 1, nil
}

func (tx *memoryTx) DeleteSale(ctx context.Context, id int64) (int64, error) {
	if _, ok := tx.repo.sales[id]; !ok {
		return 0, nil
	}
	delete(tx.repo.sales, id)
	return 1, nil
}

func (tx *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (int64, int64, error) {
	sale, ok := tx.repo.sales[id]
	if !ok {
		return 0, 0, httpx.ErrNotFound
	}
	return sale.Quantity, sale.ProductID, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return errors.New("idempotent request already processed")
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time {
		return time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	}
	return svc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireEqualDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func TestInsertSalePerUnitTotal(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.50"), Quantity: 4})
	require.NoError(t, err)
	requireEqualDecimal(t, "10.00", sale.Total)
	require.True(t, sale.ByUnit)
	require.Equal(t, "2024-06-15", sale.Date)
	require.Equal(t, "14:30:00", sale.Time)
	require.EqualValues(t, 6, repo.stocks[1])
}

func TestInsertSaleFlatTotal(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	byUnit := false

	sale, err := svc.InsertSale(context.Background(), CreateSaleRequest{
		ProductID: 1, Amount: dec("15.00"), Quantity: 3, ByUnit: &byUnit,
	})
	require.NoError(t, err)
	requireEqualDecimal(t, "15.00", sale.Total)
	require.EqualValues(t, 7, repo.stocks[1])
}

func TestInsertSaleInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 2
	svc := newTestService(repo)

	_, err := svc.InsertSale(context.Background(), CreateSaleRequest{ProductID: 1, Amount: dec("1.00"), Quantity: 3})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, repo.sales)
	require.EqualValues(t, 2, repo.stocks[1])
}

func TestInsertSaleUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.InsertSale(context.Background(), CreateSaleRequest{ProductID: 99, Amount: dec("1.00"), Quantity: 1})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Empty(t, repo.sales)
}

func TestInsertSaleRejectsInvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)

	_, err := svc.InsertSale(context.Background(), CreateSaleRequest{ProductID: 1, Amount: dec("1.00")})
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Empty(t, repo.sales)
}

func TestInsertSaleIdempotencyReplay(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	svc.idempotency = newMemoryIdem()

	req := CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 1, IdempotencyKey: uuid.NewString()}
	_, err := svc.InsertSale(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.InsertSale(context.Background(), req)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Len(t, repo.sales, 1)
	require.EqualValues(t, 9, repo.stocks[1])
}

func TestInsertSaleFailureReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 1
	svc := newTestService(repo)
	svc.idempotency = newMemoryIdem()

	req := CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 5, IdempotencyKey: uuid.NewString()}
	_, err := svc.InsertSale(context.Background(), req)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	repo.stocks[1] = 10
	_, err = svc.InsertSale(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 5, repo.stocks[1])
}

func TestUpdateSaleReconcilesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 2})
	require.NoError(t, err)
	require.EqualValues(t, 8, repo.stocks[1])

	// Raising the quantity decrements the difference.
	updated, err := svc.UpdateSale(ctx, sale.ID, UpdateSaleRequest{Amount: dec("2.00"), Quantity: 5, OldQuantity: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, repo.stocks[1])
	requireEqualDecimal(t, "10.00", updated.Total)

	// Lowering it restocks the difference.
	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleRequest{Amount: dec("2.00"), Quantity: 1, OldQuantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 9, repo.stocks[1])
}

func TestUpdateSaleOverdrawAborts(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 2})
	require.NoError(t, err)

	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleRequest{Amount: dec("2.00"), Quantity: 20, OldQuantity: 2})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.EqualValues(t, 8, repo.stocks[1])
	requireEqualDecimal(t, "4.00", repo.sales[sale.ID].Total)
}

func TestUpdateSaleNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.UpdateSale(context.Background(), 42, UpdateSaleRequest{Amount: dec("1.00"), Quantity: 1, OldQuantity: 1})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestUpdateSaleKeepsDateAndTime(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 2})
	require.NoError(t, err)

	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleRequest{Amount: dec("3.00"), Quantity: 2, OldQuantity: 2})
	require.NoError(t, err)
	stored := repo.sales[sale.ID]
	require.Equal(t, sale.Date, stored.Date)
	require.Equal(t, sale.Time, stored.Time)
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.00"), Quantity: 4})
	require.NoError(t, err)
	require.EqualValues(t, 6, repo.stocks[1])

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))
	require.EqualValues(t, 10, repo.stocks[1])
	require.Empty(t, repo.sales)

	// The restock happens exactly once.
	err = svc.DeleteSale(ctx, sale.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.EqualValues(t, 10, repo.stocks[1])
}

func TestListSalesFilterAndOrder(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 100
	repo.stocks[2] = 100
	svc := newTestService(repo)
	ctx := context.Background()

	insert := func(productID int64, date, at string) Sale {
		t.Helper()
		sale, err := svc.InsertSale(ctx, CreateSaleRequest{
			ProductID: productID, Amount: dec("1.00"), Quantity: 1, Date: date, Time: at,
		})
		require.NoError(t, err)
		return sale
	}

	insert(1, "2024-06-10", "09:00:00")
	early := insert(1, "2024-06-12", "08:00:00")
	late := insert(1, "2024-06-12", "17:00:00")
	insert(1, "2024-07-01", "10:00:00")
	insert(2, "2024-06-12", "12:00:00")

	sales, err := svc.ListSales(ctx, ListFilter{ProductID: 1, StartDate: "2024-06-11", EndDate: "2024-06-30"})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	// Same date orders newest time first.
	require.Equal(t, late.ID, sales[0].ID)
	require.Equal(t, early.ID, sales[1].ID)

	// An empty range defaults to everything for the product.
	all, err := svc.ListSales(ctx, ListFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestListSalesRequiresProduct(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.ListSales(context.Background(), ListFilter{})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestTotalsCoerceNullToZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[1] = 10
	svc := newTestService(repo)
	ctx := context.Background()

	total, err := svc.GetTotalSales(ctx)
	require.NoError(t, err)
	requireEqualDecimal(t, "0", total)

	byProduct, err := svc.GetTotalSalesByProduct(ctx, 1)
	require.NoError(t, err)
	requireEqualDecimal(t, "0", byProduct)

	_, err = svc.InsertSale(ctx, CreateSaleRequest{ProductID: 1, Amount: dec("2.50"), Quantity: 4})
	require.NoError(t, err)

	total, err = svc.GetTotalSales(ctx)
	require.NoError(t, err)
	requireEqualDecimal(t, "10.00", total)

	byProduct, err = svc.GetTotalSalesByProduct(ctx, 1)
	require.NoError(t, err)
	requireEqualDecimal(t, "10.00", byProduct)
}
