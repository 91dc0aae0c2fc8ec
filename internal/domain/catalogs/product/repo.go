package product

import (
	"context"

	"caixa/internal/core/id"
	"caixa/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// FindByBarcode retrieves a product by barcode.
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)

	// GetRecipe retrieves the recipe rows for a product.
	// Empty slice for products without a recipe.
	GetRecipe(ctx context.Context, productID id.ID) ([]RecipeItem, error)

	// SaveRecipe replaces the recipe rows for a product.
	SaveRecipe(ctx context.Context, productID id.ID, items []RecipeItem) error

	// GetMany retrieves products by ids in one round trip.
	GetMany(ctx context.Context, ids []id.ID) ([]*Product, error)
}
