// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"caixa/internal/domain/auth"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/customer"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/documents/sale"
	"caixa/internal/domain/documents/salereturn"
	"caixa/internal/domain/registers/stock"
	"caixa/internal/infrastructure/http/v1/handlers"
	"caixa/internal/infrastructure/http/v1/middleware"
	"caixa/internal/infrastructure/storage/postgres"
	"caixa/pkg/logger"
)

// RouterConfig holds constructed services for route wiring.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// TokenValidator for session token validation.
	TokenValidator middleware.TokenValidator

	// Services.
	AuthService     *auth.Service
	SaleService     *sale.Service
	ReturnService   *salereturn.Service
	StockService    *stock.Service
	ProductService  *product.Service
	CustomerService *customer.Service
	CompanyService  *company.Service

	// IdempotencyStore enables replay protection on mutating endpoints.
	// Nil disables the middleware.
	IdempotencyStore *postgres.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Auth endpoints: login is public, the rest requires a session.
		publicAuth := v1.Group("/auth")
		protectedAuth := v1.Group("/auth")
		protectedAuth.Use(middleware.Auth(cfg.TokenValidator))

		authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)
		authHandler.RegisterRoutes(publicAuth, protectedAuth)

		// Everything else requires an authenticated operator.
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.TokenValidator))
		if cfg.IdempotencyStore != nil {
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore))
		}

		// Point of sale
		saleHandler := handlers.NewSaleHandler(baseHandler, cfg.SaleService)
		saleHandler.RegisterRoutes(protected)

		// Returns
		returnHandler := handlers.NewReturnHandler(baseHandler, cfg.ReturnService)
		returnHandler.RegisterRoutes(protected)

		// Stock register
		stockHandler := handlers.NewStockHandler(baseHandler, cfg.StockService)
		stockHandler.RegisterRoutes(protected)

		// Catalogs
		catalogs := protected.Group("/catalog")
		{
			productHandler := handlers.NewProductHandler(baseHandler, cfg.ProductService)
			products := catalogs.Group("/products")
			RegisterCatalogRoutes(products, productHandler)
			products.GET("/barcode/:barcode", productHandler.FindByBarcode)
			products.GET("/:id/recipe", productHandler.GetRecipe)
			products.PUT("/:id/recipe", middleware.RequireManager(), productHandler.SaveRecipe)

			customerHandler := handlers.NewCustomerHandler(baseHandler, cfg.CustomerService)
			RegisterCatalogRoutes(catalogs.Group("/customers"), customerHandler)

			companyHandler := handlers.NewCompanyHandler(baseHandler, cfg.CompanyService)
			RegisterCatalogRoutes(catalogs.Group("/companies"), companyHandler)
		}
	}

	return router
}
