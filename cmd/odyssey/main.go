package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/dashboard"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/customers"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/suppliers"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/procurement"
	"github.com/odyssey-erp/odyssey-wms/internal/production"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/sales"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/jobs"
	"github.com/odyssey-erp/odyssey-wms/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.MigrateOnStart {
		if err := db.Migrate(migrations.FS, cfg.PGDSN, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var redisClient *redis.Client
	if client, err := cache.New(ctx, redisOpts); err != nil {
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	notifier := inventory.NewNotifier(metrics, dashboardCache, logger)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool, logger)

	rbacService := rbac.NewService(nil)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	productService := products.NewService(products.NewRepository(dbpool), auditLogger, notifier, logger)
	customerService := customers.NewService(customers.NewRepository(dbpool))
	supplierService := suppliers.NewService(suppliers.NewRepository(dbpool))

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, notifier, logger)
	salesService := sales.NewService(sales.NewRepository(dbpool), auditLogger, notifier, logger)
	productionService := production.NewService(production.NewRepository(dbpool), auditLogger, notifier, logger)
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), auditLogger, notifier, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, cfg.LowStock(), logger)

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(queueOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProductsHandler:    products.NewHandler(logger, productService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customerService, rbacMiddleware),
		SuppliersHandler:   suppliers.NewHandler(logger, supplierService, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, idempotencyStore, rbacMiddleware),
		SalesHandler:       sales.NewHandler(logger, salesService, idempotencyStore, rbacMiddleware),
		ProductionHandler:  production.NewHandler(logger, productionService, idempotencyStore, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, idempotencyStore, rbacMiddleware),
		DashboardHandler:   dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
