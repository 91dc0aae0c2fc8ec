// Package stock provides the stock register: an append-only movement
// ledger plus maintained per-product balances.
package stock

import (
	"context"
	"time"

	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
)

// Repository defines operations for the stock register.
type Repository interface {
	// ApplyMovements inserts ledger rows and updates balances in one
	// transaction. Expense movements floor the balance at zero instead
	// of going negative.
	ApplyMovements(ctx context.Context, movements []entity.StockMovement) error

	// GetMovementsByRecorder retrieves all movements for a document.
	// Used for idempotency: a recorder that already has movements is
	// never applied twice.
	GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error)

	// GetBalance returns the current balance for a product.
	GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error)

	// GetBalances returns balances matching the filter.
	GetBalances(ctx context.Context, filter BalanceFilter) ([]entity.StockBalance, error)

	// GetMovementHistory returns movement history for a product.
	GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error)

	// RecalculateBalances rebuilds the balance table from the ledger.
	RecalculateBalances(ctx context.Context, productID *id.ID) error
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
	MinQuantity *types.Quantity
	MaxQuantity *types.Quantity
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	RecordType *entity.RecordType
	Kind       *entity.MovementKind
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
