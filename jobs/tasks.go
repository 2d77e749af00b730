package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryStockAudit values the catalog and flags negative stock.
	TaskInventoryStockAudit = "inventory:stock_audit"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// StockAuditPayload carries scheduling metadata.
type StockAuditPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	// ProductType limits the audit to one product type when set.
	ProductType string `json:"product_type,omitempty"`
}

// NewStockAuditTask constructs an Asynq task for the stock audit.
func NewStockAuditTask(at time.Time, productType string) (*asynq.Task, error) {
	body, err := json.Marshal(StockAuditPayload{ScheduledFor: at, ProductType: productType})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryStockAudit, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
