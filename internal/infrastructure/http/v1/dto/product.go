package dto

import (
	"caixa/internal/core/entity"
	"caixa/internal/core/types"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/fiscal"
)

// CreateProductRequest for creating products.
type CreateProductRequest struct {
	Code        string             `json:"code"`
	Name        string             `json:"name" binding:"required"`
	ParentID    *string            `json:"parentId"`
	IsFolder    bool               `json:"isFolder"`
	Kind        product.Kind       `json:"kind"`
	Barcode     *string            `json:"barcode"`
	SKU         *string            `json:"sku"`
	Price       types.Money        `json:"price"`
	Unit        string             `json:"unit"`
	TracksStock bool               `json:"tracksStock"`
	Tax         fiscal.TaxSnapshot `json:"tax"`
	Attributes  entity.Attributes  `json:"attributes"`
}

// ToEntity converts the request into a domain product.
func (r CreateProductRequest) ToEntity() *product.Product {
	p := product.NewProduct(r.Code, r.Name, r.Kind)
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Barcode = r.Barcode
	p.SKU = r.SKU
	p.Price = r.Price
	p.Unit = r.Unit
	p.TracksStock = r.TracksStock
	p.Tax = r.Tax
	p.Attributes = r.Attributes
	return p
}

// UpdateProductRequest for updating products.
type UpdateProductRequest struct {
	Code        *string             `json:"code"`
	Name        *string             `json:"name"`
	ParentID    *string             `json:"parentId"`
	Kind        *product.Kind       `json:"kind"`
	Barcode     *string             `json:"barcode"`
	SKU         *string             `json:"sku"`
	Price       *types.Money        `json:"price"`
	Unit        *string             `json:"unit"`
	TracksStock *bool               `json:"tracksStock"`
	Tax         *fiscal.TaxSnapshot `json:"tax"`
	Attributes  entity.Attributes   `json:"attributes"`
	Version     int                 `json:"version" binding:"required,min=1"`
}

// ApplyTo applies non-nil fields onto an existing product.
func (r UpdateProductRequest) ApplyTo(p *product.Product) {
	if r.Code != nil {
		p.Code = *r.Code
	}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.ParentID != nil {
		p.ParentID = r.ParentID
	}
	if r.Kind != nil {
		p.Kind = *r.Kind
	}
	if r.Barcode != nil {
		p.Barcode = r.Barcode
	}
	if r.SKU != nil {
		p.SKU = r.SKU
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Unit != nil {
		p.Unit = *r.Unit
	}
	if r.TracksStock != nil {
		p.TracksStock = *r.TracksStock
	}
	if r.Tax != nil {
		p.Tax = *r.Tax
	}
	if r.Attributes != nil {
		p.Attributes = r.Attributes
	}
	p.Version = r.Version
}

// ProductResponse represents a product in API responses.
type ProductResponse struct {
	CatalogResponse
	Kind        product.Kind       `json:"kind"`
	Barcode     *string            `json:"barcode,omitempty"`
	SKU         *string            `json:"sku,omitempty"`
	Price       types.Money        `json:"price"`
	Unit        string             `json:"unit"`
	TracksStock bool               `json:"tracksStock"`
	Stock       types.Quantity     `json:"stock"`
	HasRecipe   bool               `json:"hasRecipe"`
	Tax         fiscal.TaxSnapshot `json:"tax"`
}

// FromProduct creates a response from a domain product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		CatalogResponse: FromCatalog(p.Catalog),
		Kind:            p.Kind,
		Barcode:         p.Barcode,
		SKU:             p.SKU,
		Price:           p.Price,
		Unit:            p.Unit,
		TracksStock:     p.TracksStock,
		Stock:           p.Stock,
		HasRecipe:       p.HasRecipe,
		Tax:             p.Tax,
	}
}

// SaveRecipeRequest replaces a product's recipe.
type SaveRecipeRequest struct {
	Items []product.RecipeItem `json:"items"`
}
