package handlers

import (
	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/infrastructure/http/v1/dto"
)

// ProductHTTPHandler wraps the generic catalog handler for products.
type ProductHTTPHandler struct {
	*CatalogHandler[*product.Product, dto.CreateProductRequest, dto.UpdateProductRequest]
	service *product.Service
}

// NewProductHandler creates a product handler over the generic catalog CRUD.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHTTPHandler {
	config := CatalogHandlerConfig[
		*product.Product,
		dto.CreateProductRequest,
		dto.UpdateProductRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "product",

		MapCreateDTO: func(req dto.CreateProductRequest) *product.Product {
			return req.ToEntity()
		},

		MapUpdateDTO: func(req dto.UpdateProductRequest, existing *product.Product) *product.Product {
			req.ApplyTo(existing)
			return existing
		},

		MapToDTO: func(entity *product.Product) any {
			return dto.FromProduct(entity)
		},
	}

	return &ProductHTTPHandler{
		CatalogHandler: NewCatalogHandler(base, config),
		service:        service,
	}
}

// FindByBarcode handles GET /products/barcode/:barcode.
func (h *ProductHTTPHandler) FindByBarcode(c *gin.Context) {
	barcode := c.Param("barcode")
	if barcode == "" {
		h.Error(c, apperror.NewValidation("barcode is required"))
		return
	}

	p, err := h.service.FindByBarcode(c.Request.Context(), barcode)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduct(p))
}

// GetRecipe handles GET /products/:id/recipe.
func (h *ProductHTTPHandler) GetRecipe(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	items, err := h.service.GetRecipe(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"items": items})
}

// SaveRecipe handles PUT /products/:id/recipe - replaces the recipe atomically.
func (h *ProductHTTPHandler) SaveRecipe(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.SaveRecipeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.SaveRecipe(c.Request.Context(), productID, req.Items); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "recipe saved")
}
