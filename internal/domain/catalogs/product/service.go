package product

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/core/tx"
	"caixa/internal/domain"
)

// Service provides business logic for the Product catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Product]
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new Product service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		txManager:      txManager,
	}

	base.Hooks().OnBeforeCreate(svc.checkBarcode)
	base.Hooks().OnBeforeUpdate(svc.checkBarcode)

	return svc
}

// checkBarcode enforces barcode uniqueness.
func (s *Service) checkBarcode(ctx context.Context, p *Product) error {
	if p.Barcode == nil || *p.Barcode == "" {
		return nil
	}
	existing, err := s.repo.FindByBarcode(ctx, *p.Barcode)
	if err != nil {
		// Not found means the barcode is free.
		return nil
	}
	if existing.ID != p.ID {
		return apperror.NewConflict("product with this barcode already exists").
			WithDetail("barcode", *p.Barcode)
	}
	return nil
}

// FindByBarcode retrieves a product by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Product, error) {
	p, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", barcode)
		}
		return nil, err
	}
	return p, nil
}

// GetRecipe retrieves the recipe for a product.
func (s *Service) GetRecipe(ctx context.Context, productID id.ID) ([]RecipeItem, error) {
	return s.repo.GetRecipe(ctx, productID)
}

// SaveRecipe replaces the recipe and flips the HasRecipe flag to match.
func (s *Service) SaveRecipe(ctx context.Context, productID id.ID, items []RecipeItem) error {
	p, err := s.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.Kind == KindService {
		return apperror.NewValidation("services cannot carry a recipe").
			WithDetail("productId", productID.String())
	}

	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation("recipe quantity must be positive").
				WithDetail("ingredientId", item.IngredientID.String())
		}
		if item.IngredientID == productID {
			return apperror.NewValidation("product cannot be its own ingredient").
				WithDetail("productId", productID.String())
		}
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.SaveRecipe(ctx, productID, items); err != nil {
			return err
		}
		p.HasRecipe = len(items) > 0
		p.Touch()
		return s.repo.Update(ctx, p)
	})
}

// GetMany retrieves products by ids.
func (s *Service) GetMany(ctx context.Context, ids []id.ID) ([]*Product, error) {
	return s.repo.GetMany(ctx, ids)
}
