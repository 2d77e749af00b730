package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
)

// StockSource lists products with their ledger totals.
type StockSource interface {
	ProductTotals(ctx context.Context, f inventory.ValuationFilter) ([]inventory.ProductTotals, error)
}

// StockAuditJob values the catalog and reports products with negative stock.
// It only reads the ledger.
type StockAuditJob struct {
	Source  StockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// StockAuditResult summarises one audit run.
type StockAuditResult struct {
	Products int
	Negative []inventory.Valuation
	Report   inventory.InventoryReport
}

// NewStockAuditJob initialises the stock audit handler.
func NewStockAuditJob(source StockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAuditJob {
	return &StockAuditJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the stock audit.
func (j *StockAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("stock audit: handler not configured")
	}
	var payload StockAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, inventory.ProductType(payload.ProductType))
	return err
}

// Run audits the catalog, optionally limited to one product type.
func (j *StockAuditJob) Run(ctx context.Context, productType inventory.ProductType) (result StockAuditResult, err error) {
	start := j.now()
	tracker := j.Metrics.Track(TaskInventoryStockAudit)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	if productType != "" {
		logger = logger.With(slog.String("product_type", string(productType)))
	}
	logger.Info("starting stock audit")

	items, err := j.Source.ProductTotals(ctx, inventory.ValuationFilter{Type: productType})
	if err != nil {
		logger.Error("stock audit failed", slog.Any("error", err))
		return StockAuditResult{}, err
	}
	result.Products = len(items)
	result.Report = inventory.BuildReport(items)

	byType := map[inventory.ProductType]float64{}
	for _, v := range result.Report.Items {
		byType[v.ProductType] += v.StockValue.InexactFloat64()
		if v.Stock.IsNegative() {
			result.Negative = append(result.Negative, v)
			logger.Warn("negative stock detected",
				slog.Int64("product_id", v.ProductID),
				slog.String("product", v.ProductName),
				slog.String("stock", v.Stock.String()),
			)
		}
	}
	j.Metrics.SetNegativeStock(len(result.Negative))
	for typ, value := range byType {
		j.Metrics.SetStockValue(string(typ), value)
	}

	logger.Info("completed stock audit",
		slog.Int("products", result.Products),
		slog.Int("negative", len(result.Negative)),
		slog.String("stock_value", result.Report.TotalStockValue.String()),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (j *StockAuditJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *StockAuditJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
