package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile repairs products whose stock drifted from the sold totals.
	TaskStockReconcile = "stock:reconcile"
)

// StockReconcilePayload carries scheduling metadata.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReconcileTask constructs an Asynq task for the stock repair pass.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	payload := StockReconcilePayload{ScheduledFor: at}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}
