package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"caixa/internal/core/id"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/infrastructure/storage/postgres"
)

const (
	productsTable       = "cat_products"
	productRecipesTable = "cat_product_recipes"
)

var productColumns = []string{
	"id", "deletion_mark", "version", "attributes",
	"code", "name", "parent_id", "is_folder",
	"kind", "barcode", "sku", "price", "unit",
	"tracks_stock", "stock", "has_recipe", "tax",
}

var recipeColumns = []string{
	"product_id", "ingredient_id", "quantity",
}

// ProductRepo implements product.Repository.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			productsTable,
			productColumns,
			func() *product.Product { return &product.Product{} },
		),
	}
}

// FindByBarcode retrieves a product by barcode. The column has a unique
// partial index on non-deleted rows.
func (r *ProductRepo) FindByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	q := r.Builder().
		Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"barcode": barcode}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

// GetRecipe retrieves the recipe rows for a product.
func (r *ProductRepo) GetRecipe(ctx context.Context, productID id.ID) ([]product.RecipeItem, error) {
	sql, args, err := r.Builder().
		Select(recipeColumns...).
		From(productRecipesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("ingredient_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []product.RecipeItem
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select recipe: %w", err)
	}
	return items, nil
}

// SaveRecipe replaces the recipe rows for a product.
func (r *ProductRepo) SaveRecipe(ctx context.Context, productID id.ID, items []product.RecipeItem) error {
	return r.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.Querier(ctx)

		delSQL, delArgs, err := r.Builder().
			Delete(productRecipesTable).
			Where(squirrel.Eq{"product_id": productID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, delSQL, delArgs...); err != nil {
			return fmt.Errorf("delete recipe: %w", err)
		}

		if len(items) == 0 {
			return nil
		}

		q := r.Builder().
			Insert(productRecipesTable).
			Columns(recipeColumns...)
		for _, it := range items {
			q = q.Values(productID, it.IngredientID, it.Quantity)
		}

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert recipe: %w", err)
		}
		return nil
	})
}

// GetMany retrieves products by ids in one round trip.
func (r *ProductRepo) GetMany(ctx context.Context, ids []id.ID) ([]*product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql, args, err := r.Builder().
		Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []*product.Product
	if err := pgxscan.Select(ctx, r.Querier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// Ensure interface compliance.
var _ product.Repository = (*ProductRepo)(nil)
