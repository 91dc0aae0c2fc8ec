// Package main is the entry point for the caixa API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caixa/internal/domain/auth"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/customer"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/documents/sale"
	"caixa/internal/domain/documents/salereturn"
	domainfiscal "caixa/internal/domain/fiscal"
	"caixa/internal/domain/progress"
	"caixa/internal/domain/registers/stock"
	"caixa/internal/infrastructure/fiscal"
	v1 "caixa/internal/infrastructure/http/v1"
	"caixa/internal/infrastructure/storage/postgres"
	"caixa/internal/infrastructure/storage/postgres/auth_repo"
	"caixa/internal/infrastructure/storage/postgres/catalog_repo"
	"caixa/internal/infrastructure/storage/postgres/document_repo"
	"caixa/internal/infrastructure/storage/postgres/register_repo"
	"caixa/pkg/config"
	"caixa/pkg/logger"
	"caixa/pkg/numerator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Infow("starting caixa server", "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DB.URL)
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("failed to ping database", "error", err)
	}
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Numbering ---
	reservoir := numerator.NewReservoir(pool)
	numeratorService := numerator.New(pool)

	// --- Fiscal authority client ---
	var emitter domainfiscal.Emitter
	if cfg.Fiscal.CertPath != "" {
		client, err := fiscal.NewClient(cfg.Fiscal, log)
		if err != nil {
			log.Fatalw("failed to initialize fiscal client", "error", err)
		}
		emitter = client
		log.Infow("fiscal client initialized", "environment", cfg.Fiscal.Environment)
	} else {
		emitter = fiscal.NewDisabled()
		log.Warn("no fiscal certificate configured; receipts will park as pending")
	}

	// --- Repositories ---
	productRepo := catalog_repo.NewProductRepo(txManager)
	customerRepo := catalog_repo.NewCustomerRepo(txManager)
	companyRepo := catalog_repo.NewCompanyRepo(txManager)
	operatorRepo := auth_repo.NewOperatorRepo(txManager)
	saleRepo := document_repo.NewSaleRepo(txManager)
	returnRepo := document_repo.NewReturnRepo(txManager)
	stockRepo := register_repo.NewStockRepo(txManager)

	// --- Services ---
	productService := product.NewService(productRepo, txManager)
	customerService := customer.NewService(customerRepo, txManager)
	companyService := company.NewService(companyRepo, txManager)

	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.Expiration,
	})
	authService := auth.NewService(operatorRepo, jwtService, auth.DefaultServiceConfig())

	stockService := stock.NewService(stockRepo, productRepo)

	saleService := sale.NewService(
		saleRepo,
		companyRepo,
		customerRepo,
		productRepo,
		emitter,
		reservoir,
		stockService,
		progress.NewLogReporter(),
		numeratorService,
	)

	returnService := salereturn.NewService(
		returnRepo,
		saleRepo,
		stockService,
		companyRepo,
		productRepo,
		emitter,
		reservoir,
		numeratorService,
	)

	// --- Idempotency ---
	idempotencyStore := postgres.NewIdempotencyStore(txManager, 10*time.Minute)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:             pool,
		Logger:           log,
		TokenValidator:   authService,
		AuthService:      authService,
		SaleService:      saleService,
		ReturnService:    returnService,
		StockService:     stockService,
		ProductService:   productService,
		CustomerService:  customerService,
		CompanyService:   companyService,
		IdempotencyStore: idempotencyStore,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
