// Package stock provides the stock reconciliation engine.
package stock

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/catalogs/product"
	"caixa/pkg/logger"
)

// ProductLookup is the slice of the product repository the engine needs.
type ProductLookup interface {
	GetByID(ctx context.Context, id id.ID) (*product.Product, error)
	GetRecipe(ctx context.Context, productID id.ID) ([]product.RecipeItem, error)
}

// Service reconciles stock after sales and returns.
//
// Reconciliation is strictly best-effort: a sale that is already
// finalized (and possibly fiscally authorized) is never rolled back
// because stock bookkeeping failed. Every failure becomes a Warning,
// is logged, and the workflow moves on.
type Service struct {
	repo     Repository
	products ProductLookup
}

// NewService creates a new stock reconciliation service.
func NewService(repo Repository, products ProductLookup) *Service {
	return &Service{
		repo:     repo,
		products: products,
	}
}

// SaleLine is the stock-relevant projection of a sold item.
type SaleLine struct {
	SaleItemID id.ID
	ProductID  *id.ID
	Quantity   types.Quantity
}

// ReturnLine is the stock-relevant projection of a returned item.
type ReturnLine struct {
	ReturnItemID id.ID
	ProductID    id.ID
	Quantity     types.Quantity
}

// Warning is a non-fatal reconciliation failure.
type Warning struct {
	ProductID id.ID  `json:"productId"`
	Message   string `json:"message"`
}

// ApplySale decrements stock for a finalized sale.
//
// Per line:
//   - product-less and service lines are skipped;
//   - products with a recipe consume ingredient stock, quantity =
//     ingredient-per-unit times units sold;
//   - plain stock-tracked goods are decremented directly.
//
// Re-applying the same sale is a no-op: movements are keyed by recorder.
func (s *Service) ApplySale(ctx context.Context, saleID id.ID, period time.Time, lines []SaleLine) []Warning {
	existing, err := s.repo.GetMovementsByRecorder(ctx, saleID)
	if err != nil {
		return s.warnAll(ctx, saleID, "read existing movements", err)
	}
	if len(existing) > 0 {
		logger.Info(ctx, "stock already applied for sale, skipping",
			"sale_id", saleID, "movements", len(existing))
		return nil
	}

	var movements []entity.StockMovement
	var warnings []Warning

	for _, line := range lines {
		if line.ProductID == nil {
			continue
		}

		p, err := s.products.GetByID(ctx, *line.ProductID)
		if err != nil {
			warnings = append(warnings, s.warn(ctx, *line.ProductID, "load product", err))
			continue
		}
		if p.Kind == product.KindService {
			continue
		}

		if p.HasRecipe {
			recipe, err := s.products.GetRecipe(ctx, p.ID)
			if err != nil {
				warnings = append(warnings, s.warn(ctx, p.ID, "load recipe", err))
				continue
			}
			for _, ing := range recipe {
				m := entity.NewStockMovement(
					saleID, "Sale", period, entity.RecordTypeExpense,
					entity.MovementRecipeConsumption,
					ing.IngredientID, line.Quantity.Mul(ing.Quantity),
				)
				m.SaleItemID = &line.SaleItemID
				movements = append(movements, m)
			}
			continue
		}

		if !p.MovesStock() {
			continue
		}

		m := entity.NewStockMovement(
			saleID, "Sale", period, entity.RecordTypeExpense,
			entity.MovementDirectSale,
			p.ID, line.Quantity,
		)
		m.SaleItemID = &line.SaleItemID
		movements = append(movements, m)
	}

	if len(movements) == 0 {
		return warnings
	}

	if err := s.repo.ApplyMovements(ctx, movements); err != nil {
		return append(warnings, s.warnAll(ctx, saleID, "apply movements", err)...)
	}

	logger.Info(ctx, "stock reconciled for sale",
		"sale_id", saleID, "movements", len(movements))
	return warnings
}

// ApplyReturn credits stock for a processed return. The credit always
// targets the sold product's own stock: ingredients consumed through a
// recipe are not re-credited.
func (s *Service) ApplyReturn(ctx context.Context, returnID id.ID, period time.Time, lines []ReturnLine) []Warning {
	existing, err := s.repo.GetMovementsByRecorder(ctx, returnID)
	if err != nil {
		return s.warnAll(ctx, returnID, "read existing movements", err)
	}
	if len(existing) > 0 {
		logger.Info(ctx, "stock already applied for return, skipping",
			"return_id", returnID, "movements", len(existing))
		return nil
	}

	var movements []entity.StockMovement
	var warnings []Warning

	for _, line := range lines {
		p, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			warnings = append(warnings, s.warn(ctx, line.ProductID, "load product", err))
			continue
		}
		if p.Kind == product.KindService {
			continue
		}

		m := entity.NewStockMovement(
			returnID, "Return", period, entity.RecordTypeReceipt,
			entity.MovementReturnCredit,
			p.ID, line.Quantity,
		)
		m.SaleItemID = &line.ReturnItemID
		movements = append(movements, m)
	}

	if len(movements) == 0 {
		return warnings
	}

	if err := s.repo.ApplyMovements(ctx, movements); err != nil {
		return append(warnings, s.warnAll(ctx, returnID, "apply movements", err)...)
	}

	logger.Info(ctx, "stock reconciled for return",
		"return_id", returnID, "movements", len(movements))
	return warnings
}

// CheckAvailability verifies that every stock-tracked line can be
// served. Optional pre-finalization gate for installations that block
// overselling; reconciliation itself never blocks.
func (s *Service) CheckAvailability(ctx context.Context, lines []SaleLine) error {
	for _, line := range lines {
		if line.ProductID == nil {
			continue
		}
		p, err := s.products.GetByID(ctx, *line.ProductID)
		if err != nil {
			return err
		}
		if !p.MovesStock() || p.HasRecipe {
			continue
		}

		balance, err := s.repo.GetBalance(ctx, p.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				balance = entity.StockBalance{ProductID: p.ID}
			} else {
				return err
			}
		}
		if balance.Quantity < line.Quantity {
			return apperror.NewInsufficientStock(
				p.ID.String(),
				line.Quantity.Float64(),
				balance.Quantity.Float64(),
			)
		}
	}
	return nil
}

// GetBalance returns the current balance for a product.
func (s *Service) GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	return s.repo.GetBalance(ctx, productID)
}

// GetMovementsByRecorder returns the ledger rows of a document.
func (s *Service) GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	return s.repo.GetMovementsByRecorder(ctx, recorderID)
}

// GetMovementHistory returns movement history for a product.
func (s *Service) GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	return s.repo.GetMovementHistory(ctx, productID, filter)
}

func (s *Service) warn(ctx context.Context, productID id.ID, op string, err error) Warning {
	logger.Warn(ctx, "stock reconciliation failure",
		"product_id", productID, "op", op, "error", err)
	return Warning{
		ProductID: productID,
		Message:   op + ": " + err.Error(),
	}
}

func (s *Service) warnAll(ctx context.Context, recorderID id.ID, op string, err error) []Warning {
	logger.Warn(ctx, "stock reconciliation failure",
		"recorder_id", recorderID, "op", op, "error", err)
	return []Warning{{
		Message: op + ": " + err.Error(),
	}}
}
