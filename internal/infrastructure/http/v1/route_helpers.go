// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"caixa/internal/infrastructure/http/v1/middleware"
)

// CatalogRouteHandler defines the interface for catalog handlers.
// All catalog handlers must implement these methods.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	SetDeletionMark(c *gin.Context)
	GetTree(c *gin.Context)
}

// RegisterCatalogRoutes registers standard CRUD routes for a catalog.
// This eliminates the need to manually wire up routes for each catalog.
// Writes are restricted to managers; reads are open to any operator.
//
// Usage:
//
//	repo := catalog_repo.NewProductRepo(txManager)
//	service := product.NewService(repo, txManager)
//	handler := handlers.NewProductHandler(baseHandler, service)
//	RegisterCatalogRoutes(catalogs.Group("/products"), handler)
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler) {
	manager := middleware.RequireManager()

	group.GET("", handler.List)
	group.POST("", manager, handler.Create)
	group.GET("/tree", handler.GetTree)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", manager, handler.Update)
	group.DELETE("/:id", manager, handler.Delete)
	group.POST("/:id/deletion-mark", manager, handler.SetDeletionMark)
}
