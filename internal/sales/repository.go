package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// Sale writes and their paired stock writes travel through the same
// transaction so they commit or roll back together.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, productID int64) (int64, error)
	AdjustStock(ctx context.Context, productID, delta int64) error
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	UpdateSale(ctx context.Context, sale Sale) (int64, error)
	DeleteSale(ctx context.Context, id int64) (int64, error)
	GetSaleForUpdate(ctx context.Context, id int64) (quantity, productID int64, err error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListByProductAndDateRange returns sales for one product between two dates,
// inclusive on both bounds, ordered oldest day first with the most recent
// sale of each day first. The dual-key order is part of the contract.
func (r *Repository) ListByProductAndDateRange(ctx context.Context, filter ListFilter) ([]Sale, error) {
	if r == nil {
		return nil, errors.New("sales repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, amount, quantity, by_unit, total, sale_date, sale_time
FROM sales
WHERE product_id = $1 AND sale_date BETWEEN $2 AND $3
ORDER BY sale_date ASC, sale_time DESC`, filter.ProductID, filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Amount, &s.Quantity, &s.ByUnit, &s.Total, &s.Date, &s.Time); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// TotalSales sums the stored totals over all sales. The null when no sales
// exist is preserved here; coercing to zero is the service's decision.
func (r *Repository) TotalSales(ctx context.Context) (decimal.NullDecimal, error) {
	var total decimal.NullDecimal
	err := r.pool.QueryRow(ctx, `SELECT SUM(total) FROM sales`).Scan(&total)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("sales: total: %w", err)
	}
	return total, nil
}

// TotalSalesByProduct sums the stored totals for one product, null when the
// product has no sales.
func (r *Repository) TotalSalesByProduct(ctx context.Context, productID int64) (decimal.NullDecimal, error) {
	var total decimal.NullDecimal
	err := r.pool.QueryRow(ctx, `SELECT SUM(total) FROM sales WHERE product_id = $1`, productID).Scan(&total)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("sales: total by product: %w", err)
	}
	return total, nil
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	var stock int64
	err := r.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("sales: product %d: %w", productID, httpx.ErrNotFound)
		}
		return 0, err
	}
	return stock, nil
}

// AdjustStock applies a signed delta atomically.
func (r *txRepository) AdjustStock(ctx context.Context, productID, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, delta)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sales: product %d: %w", productID, httpx.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (product_id, amount, quantity, by_unit, total, sale_date, sale_time)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sale.ProductID, sale.Amount, sale.Quantity, sale.ByUnit, sale.Total, sale.Date, sale.Time).Scan(&id)
	if err != nil {
		return 0, translatePgError(err)
	}
	return id, nil
}

// UpdateSale edits amount, quantity, flag and total. Date and time are
// immutable once captured.
func (r *txRepository) UpdateSale(ctx context.Context, sale Sale) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE sales SET amount = $2, quantity = $3, by_unit = $4, total = $5 WHERE id = $1`,
		sale.ID, sale.Amount, sale.Quantity, sale.ByUnit, sale.Total)
	if err != nil {
		return 0, translatePgError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteSale(ctx context.Context, id int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetSaleForUpdate locks the sale row and reports its current quantity and
// product.
func (r *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (int64, int64, error) {
	var quantity, productID int64
	err := r.tx.QueryRow(ctx, `SELECT quantity, product_id FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&quantity, &productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("sales: sale %d: %w", id, httpx.ErrNotFound)
		}
		return 0, 0, err
	}
	return quantity, productID, nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, httpx.ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, httpx.ErrConstraint)
		}
	}
	return err
}
