// Package product provides the Product catalog: everything sellable at
// the POS, plus the recipe (bill of materials) used by stock breakdown.
package product

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/fiscal"
)

// Kind defines the product category.
type Kind string

const (
	// KindGoods is a physical item held in stock.
	KindGoods Kind = "goods"
	// KindService has no stock presence and is skipped by reconciliation.
	KindService Kind = "service"
)

// Product is a sellable catalog item.
type Product struct {
	entity.Catalog

	Kind Kind `db:"kind" json:"kind"`

	// Barcode is the scannable code (EAN-13 etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// SKU is the internal article code
	SKU *string `db:"sku" json:"sku,omitempty"`

	// Price is the default sale price
	Price types.Money `db:"price" json:"price"`

	// Unit of measure for display ("UN", "KG")
	Unit string `db:"unit" json:"unit"`

	// TracksStock disables reconciliation for items sold without
	// inventory control even when they are goods.
	TracksStock bool `db:"tracks_stock" json:"tracksStock"`

	// Stock is the current balance, maintained by the stock register.
	// Read-only from the catalog's point of view.
	Stock types.Quantity `db:"stock" json:"stock"`

	// HasRecipe marks products whose sale consumes ingredients instead
	// of their own stock. The recipe rows live in a separate table.
	HasRecipe bool `db:"has_recipe" json:"hasRecipe"`

	// Tax holds the fiscal attributes copied onto sale items at sale
	// time. Opaque values, maintained by the accountant.
	Tax fiscal.TaxSnapshot `db:"tax" json:"tax"`
}

// NewProduct creates a new Product with required fields.
func NewProduct(code, name string, kind Kind) *Product {
	return &Product{
		Catalog: entity.NewCatalog(code, name),
		Kind:    kind,
		Unit:    "UN",
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if p.Kind != KindGoods && p.Kind != KindService {
		return apperror.NewValidation("invalid product kind").
			WithDetail("field", "kind").
			WithDetail("value", string(p.Kind))
	}

	if p.Price.IsNegative() {
		return apperror.NewValidation("price cannot be negative").
			WithDetail("field", "price")
	}

	if p.Kind == KindService && (p.TracksStock || p.HasRecipe) {
		return apperror.NewValidation("services cannot track stock or carry a recipe").
			WithDetail("field", "kind")
	}

	return nil
}

// MovesStock reports whether selling this product should touch the
// stock register at all.
func (p *Product) MovesStock() bool {
	return p.Kind == KindGoods && p.TracksStock
}

// RecipeItem is one ingredient of a product's recipe: selling one unit
// of the product consumes Quantity of the ingredient.
type RecipeItem struct {
	ProductID    id.ID          `db:"product_id" json:"productId"`
	IngredientID id.ID          `db:"ingredient_id" json:"ingredientId"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
}
