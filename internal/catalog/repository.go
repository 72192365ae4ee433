package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertProduct(ctx context.Context, product Product) (int64, error)
	UpdateProduct(ctx context.Context, product Product) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
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

// GetAll lists products ordered by insertion, each carrying the summed sale
// totals. Left join keeps products without sales at a total of zero.
func (r *Repository) GetAll(ctx context.Context) ([]Product, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.stock, p.initial_stock, p.price, COALESCE(SUM(s.total), 0) AS total_sales, p.created_at
FROM products p
LEFT JOIN sales s ON s.product_id = p.id
GROUP BY p.id
ORDER BY p.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Stock, &p.InitialStock, &p.Price, &p.TotalSales, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID fetches a single product with its summed sale totals.
func (r *Repository) GetByID(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT p.id, p.name, p.stock, p.initial_stock, p.price, COALESCE(SUM(s.total), 0) AS total_sales, p.created_at
FROM products p
LEFT JOIN sales s ON s.product_id = p.id
WHERE p.id = $1
GROUP BY p.id`, id).
		Scan(&p.ID, &p.Name, &p.Stock, &p.InitialStock, &p.Price, &p.TotalSales, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("catalog: product %d: %w", id, httpx.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) InsertProduct(ctx context.Context, product Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (name, stock, initial_stock, price, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id`, product.Name, product.Stock, product.InitialStock, product.Price).Scan(&id)
	if err != nil {
		return 0, translatePgError(err)
	}
	return id, nil
}

// UpdateProduct edits name, stock and price, rebasing initial_stock against
// the currently existing sale quantities so the stock invariant holds after
// a manual stock edit. Returns the number of rows affected (0 or 1).
func (r *txRepository) UpdateProduct(ctx context.Context, product Product) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE products
SET name = $2,
    price = $3,
    stock = $4,
    initial_stock = $4 + (SELECT COALESCE(SUM(quantity), 0) FROM sales WHERE product_id = $1)
WHERE id = $1`, product.ID, product.Name, product.Price, product.Stock)
	if err != nil {
		return 0, translatePgError(err)
	}
	return tag.RowsAffected(), nil
}

// translatePgError surfaces unique and foreign-key violations as the shared
// sentinels so services and handlers can branch on them.
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
