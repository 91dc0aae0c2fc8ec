package salereturn

import (
	"context"
	"time"

	"caixa/internal/core/id"
	"caixa/internal/domain/fiscal"
)

// Repository defines return persistence operations.
type Repository interface {
	// Create inserts the return header.
	Create(ctx context.Context, r *Return) error

	// Update updates the header with optimistic locking.
	Update(ctx context.Context, r *Return) error

	// Delete removes a return header. Used as the compensating action
	// when item persistence fails after the header was written; only
	// pending returns may be deleted.
	Delete(ctx context.Context, returnID id.ID) error

	// GetByID retrieves the return header.
	GetByID(ctx context.Context, returnID id.ID) (*Return, error)

	// GetItems retrieves the return's items.
	GetItems(ctx context.Context, returnID id.ID) ([]ReturnItem, error)

	// SaveItems inserts the return's items.
	SaveItems(ctx context.Context, returnID id.ID, items []ReturnItem) error

	// UpdateFiscal stores the corrective document linkage.
	UpdateFiscal(ctx context.Context, returnID id.ID, info fiscal.DocumentInfo) error

	// List retrieves returns with filtering.
	List(ctx context.Context, filter ListFilter) ([]Return, int, error)

	// HighestTradeCode returns the highest code in the return ledger of
	// the company, or empty when none exists.
	HighestTradeCode(ctx context.Context, companyID id.ID) (string, error)

	// TradeCodeExists checks the return ledger for a code.
	TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error)
}

// ListFilter for return queries.
type ListFilter struct {
	CompanyID    *id.ID
	OriginSaleID *id.ID
	Status       *Status
	FromDate     *time.Time
	ToDate       *time.Time
	Limit        int
	Offset       int
}
