package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/live"
	"github.com/shopledger/shopledger/internal/platform/db"
)

// Reconciler repairs products whose stock no longer matches the sold totals.
// Drift only appears when a sale and its stock adjustment were not applied
// together, so every repaired row is reported as a partial application.
type Reconciler struct {
	pool    *pgxpool.Pool
	bus     *live.Bus
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewReconciler constructs a Reconciler.
func NewReconciler(pool *pgxpool.Pool, bus *live.Bus, logger *slog.Logger, metrics *jobmetrics.Metrics) *Reconciler {
	return &Reconciler{pool: pool, bus: bus, logger: logger, metrics: metrics}
}

type repairedProduct struct {
	ID    int64
	Stock int64
}

const repairStockSQL = `
UPDATE products p
SET stock = p.initial_stock - COALESCE((SELECT SUM(quantity) FROM sales WHERE product_id = p.id), 0)
WHERE p.stock <> p.initial_stock - COALESCE((SELECT SUM(quantity) FROM sales WHERE product_id = p.id), 0)
RETURNING p.id, p.stock`

// Run executes one repair pass and returns the number of corrected products.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	var repaired []repairedProduct
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, repairStockSQL)
		if err != nil {
			return fmt.Errorf("repair stock: %w", err)
		}
		defer rows.Close()
		repaired = repaired[:0]
		for rows.Next() {
			var p repairedProduct
			if err := rows.Scan(&p.ID, &p.Stock); err != nil {
				return fmt.Errorf("scan repaired product: %w", err)
			}
			repaired = append(repaired, p)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, err
	}

	for _, p := range repaired {
		r.logger.Warn("stock drift repaired",
			slog.Int64("product_id", p.ID),
			slog.Int64("stock", p.Stock),
			slog.Any("error", fmt.Errorf("product %d: %w", p.ID, ledger.ErrPartialApplication)))
		r.metrics.AddDrift(p.ID, 1)
	}
	if len(repaired) > 0 {
		r.bus.Publish(ctx, live.TopicCatalog, live.TopicSales)
	}
	return len(repaired), nil
}

// HandleTask processes TaskStockReconcile tasks.
func (r *Reconciler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload StockReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := r.metrics.Track("stock_reconcile")
	started := time.Now()
	repaired, err := r.Run(ctx)
	if err != nil {
		r.logger.Error("stock reconcile failed", slog.Any("error", err))
		return tracker.End(err)
	}
	r.logger.Info("stock reconcile finished",
		slog.Int("repaired", repaired),
		slog.Duration("took", time.Since(started)),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return tracker.End(nil)
}
