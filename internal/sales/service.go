package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/live"
	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListByProductAndDateRange(ctx context.Context, filter ListFilter) ([]Sale, error)
	TotalSales(ctx context.Context) (decimal.NullDecimal, error)
	TotalSalesByProduct(ctx context.Context, productID int64) (decimal.NullDecimal, error)
}

// IdempotencyPort dedupes client retries of sale inserts.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates sale operations. Every mutation validates against the
// ledger rules before touching the store, and runs the sale write and its
// stock write in one transaction.
type Service struct {
	repo        RepositoryPort
	bus         *live.Bus
	idempotency IdempotencyPort
	validate    *validator.Validate
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, bus *live.Bus, idem IdempotencyPort) *Service {
	return &Service{
		repo:        repo,
		bus:         bus,
		idempotency: idem,
		validate:    validator.New(),
		now:         time.Now,
	}
}

// InsertSale consumes stock: it locks the product row, validates the
// quantity against available stock, computes the stored total, then writes
// the sale and the stock decrement as one unit. Validation failures leave
// the store untouched.
func (s *Service) InsertSale(ctx context.Context, req CreateSaleRequest) (Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return Sale{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}
	if req.Amount.IsNegative() {
		return Sale{}, fmt.Errorf("amount must not be negative: %w", httpx.ErrValidation)
	}

	byUnit := true
	if req.ByUnit != nil {
		byUnit = *req.ByUnit
	}
	now := s.now()
	sale := Sale{
		ProductID: req.ProductID,
		Amount:    req.Amount,
		Quantity:  req.Quantity,
		ByUnit:    byUnit,
		Total:     ledger.ComputeTotal(req.Amount, req.Quantity, byUnit),
		Date:      req.Date,
		Time:      req.Time,
	}
	if sale.Date == "" {
		sale.Date = now.Format(DateLayout)
	}
	if sale.Time == "" {
		sale.Time = now.Format(TimeLayout)
	}

	insertedKey := false
	if s.idempotency != nil && req.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, "sales"); err != nil {
			return Sale{}, fmt.Errorf("sales: insert replayed: %w", httpx.ErrDuplicate)
		}
		insertedKey = true
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, sale.ProductID)
		if err != nil {
			return err
		}
		if err := ledger.ValidateInsert(sale.Quantity, stock); err != nil {
			return err
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		return tx.AdjustStock(ctx, sale.ProductID, -sale.Quantity)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey)
		}
		return Sale{}, err
	}

	_ = s.bus.Publish(ctx, live.TopicSales, live.TopicCatalog)
	return sale, nil
}

// UpdateSale reconciles the stock delta against the quantity the caller
// last observed. A delta that would overdraw stock aborts before any
// mutation; updating a missing sale reports not-found with stock untouched.
func (s *Service) UpdateSale(ctx context.Context, id int64, req UpdateSaleRequest) (Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return Sale{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}
	if req.Amount.IsNegative() {
		return Sale{}, fmt.Errorf("amount must not be negative: %w", httpx.ErrValidation)
	}
	if req.Quantity < 1 {
		return Sale{}, ledger.ErrInvalidQuantity
	}

	byUnit := true
	if req.ByUnit != nil {
		byUnit = *req.ByUnit
	}
	sale := Sale{
		ID:       id,
		Amount:   req.Amount,
		Quantity: req.Quantity,
		ByUnit:   byUnit,
		Total:    ledger.ComputeTotal(req.Amount, req.Quantity, byUnit),
	}
	delta := ledger.ReconcileStockDelta(req.OldQuantity, req.Quantity)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		productID, err := s.lockSaleProduct(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		sale.ProductID = productID
		rows, err := tx.UpdateSale(ctx, sale)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("sales: sale %d: %w", id, httpx.ErrNotFound)
		}
		if delta != 0 {
			return tx.AdjustStock(ctx, sale.ProductID, delta)
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	_ = s.bus.Publish(ctx, live.TopicSales, live.TopicCatalog)
	return sale, nil
}

// DeleteSale removes a sale and restores exactly its quantity to stock,
// exactly once. Restocking never needs validation.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quantity, productID, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		rows, err := tx.DeleteSale(ctx, id)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("sales: sale %d: %w", id, httpx.ErrNotFound)
		}
		return tx.AdjustStock(ctx, productID, quantity)
	})
	if err != nil {
		return err
	}
	_ = s.bus.Publish(ctx, live.TopicSales, live.TopicCatalog)
	return nil
}

// ListSales returns a product's sales within an inclusive date range.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	if filter.ProductID <= 0 {
		return nil, fmt.Errorf("product id required: %w", httpx.ErrValidation)
	}
	if filter.StartDate == "" {
		filter.StartDate = "0001-01-01"
	}
	if filter.EndDate == "" {
		filter.EndDate = "9999-12-31"
	}
	return s.repo.ListByProductAndDateRange(ctx, filter)
}

// GetTotalSales reports revenue over all sales, coercing the store's
// null-when-empty to 0.00 at this layer.
func (s *Service) GetTotalSales(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.repo.TotalSales(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return coerceTotal(total), nil
}

// GetTotalSalesByProduct reports revenue for one product, 0.00 when the
// product has no sales.
func (s *Service) GetTotalSalesByProduct(ctx context.Context, productID int64) (decimal.Decimal, error) {
	total, err := s.repo.TotalSalesByProduct(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return coerceTotal(total), nil
}

// WatchTotalSales emits the aggregate revenue immediately and after every
// committed sale mutation.
func (s *Service) WatchTotalSales(ctx context.Context) (<-chan decimal.Decimal, error) {
	return s.watchTotal(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return s.GetTotalSales(ctx)
	})
}

// WatchTotalSalesByProduct is WatchTotalSales scoped to one product.
func (s *Service) WatchTotalSalesByProduct(ctx context.Context, productID int64) (<-chan decimal.Decimal, error) {
	return s.watchTotal(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return s.GetTotalSalesByProduct(ctx, productID)
	})
}

// WatchSales re-emits the filtered sale listing on every committed sale
// mutation.
func (s *Service) WatchSales(ctx context.Context, filter ListFilter) (<-chan []Sale, error) {
	ticks, err := s.bus.Watch(ctx, live.TopicSales)
	if err != nil {
		return nil, err
	}
	out := make(chan []Sale, 1)
	go func() {
		defer close(out)
		for range ticks {
			sales, err := s.ListSales(ctx, filter)
			if err != nil {
				return
			}
			select {
			case out <- sales:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) watchTotal(ctx context.Context, load func(context.Context) (decimal.Decimal, error)) (<-chan decimal.Decimal, error) {
	ticks, err := s.bus.Watch(ctx, live.TopicSales)
	if err != nil {
		return nil, err
	}
	out := make(chan decimal.Decimal, 1)
	go func() {
		defer close(out)
		for range ticks {
			total, err := load(ctx)
			if err != nil {
				return
			}
			select {
			case out <- total:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// lockSaleProduct resolves the sale's product and locks its stock row, then
// checks a negative delta against the available stock before anything is
// written.
func (s *Service) lockSaleProduct(ctx context.Context, tx TxRepository, saleID, delta int64) (int64, error) {
	_, productID, err := tx.GetSaleForUpdate(ctx, saleID)
	if err != nil {
		return 0, err
	}
	stock, err := tx.GetStockForUpdate(ctx, productID)
	if err != nil {
		return 0, err
	}
	if err := ledger.ValidateReconcile(delta, stock); err != nil {
		return 0, err
	}
	return productID, nil
}

func coerceTotal(total decimal.NullDecimal) decimal.Decimal {
	if !total.Valid {
		return decimal.Zero
	}
	return total.Decimal
}
