package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-retail/meridian/internal/app"
	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/inventory"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/cache"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/registers"
	"github.com/meridian-retail/meridian/internal/sales"
	"github.com/meridian-retail/meridian/internal/sequence"
	"github.com/meridian-retail/meridian/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, product cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	retry := shared.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: 2 * time.Second}

	ledgerStore := ledger.NewStore(pool)
	costing := ledger.NewCosting(ledgerStore)

	var productCache *catalog.Cache
	if redisClient != nil {
		productCache = catalog.NewCache(redisClient, cfg.ProductCacheTTL)
	}
	catalogService := catalog.NewService(catalog.NewRepository(pool), productCache)

	allocator := sequence.NewAllocator(sequence.NewRepository(pool), retry)

	inventoryService := inventory.NewService(ledgerStore, catalogService, inventory.Config{
		Retry:      retry,
		FutureSkew: cfg.FutureSkew,
	})

	salesRepo := sales.NewRepository(pool)
	salesConfig := sales.Config{Retry: retry, FutureSkew: cfg.FutureSkew}
	salesService := sales.NewService(salesRepo, catalogService, allocator, salesConfig)
	paymentService := sales.NewPaymentService(salesRepo, salesConfig)

	registerService := registers.NewService(registers.NewRepository(pool), nil)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalog.NewHandler(catalogService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, costing),
		LedgerHandler:    ledger.NewHandler(logger, ledgerStore),
		SalesHandler:     sales.NewHandler(logger, salesService, paymentService, catalogService),
		RegisterHandler:  registers.NewHandler(logger, registerService, paymentService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
