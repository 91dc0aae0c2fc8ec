package sale

import (
	"context"
	"time"

	"caixa/internal/core/id"
	"caixa/internal/domain/fiscal"
)

// Repository defines sale persistence operations.
type Repository interface {
	// Create inserts the sale header.
	Create(ctx context.Context, s *Sale) error

	// Update updates the sale header with optimistic locking.
	Update(ctx context.Context, s *Sale) error

	// GetByID retrieves the sale header.
	GetByID(ctx context.Context, saleID id.ID) (*Sale, error)

	// GetItems retrieves the sale's items.
	GetItems(ctx context.Context, saleID id.ID) ([]SaleItem, error)

	// ReconcileItems diffs incoming items against persisted rows by
	// LineKey: matched rows are updated in place, new keys inserted,
	// vanished keys deleted. Re-running with the same lines leaves the
	// row count unchanged.
	ReconcileItems(ctx context.Context, saleID id.ID, items []SaleItem) error

	// UpdateFiscal stores the fiscal linkage independently of the header
	// version; fiscal state changes never bump the sale version.
	UpdateFiscal(ctx context.Context, saleID id.ID, info fiscal.DocumentInfo) error

	// StampTradeCode back-stamps the sale with a return's trade code.
	StampTradeCode(ctx context.Context, saleID id.ID, tradeCode string) error

	// ListHeld lists in_progress drafts of an operator, newest first.
	ListHeld(ctx context.Context, operatorID id.ID) ([]Sale, error)

	// ListFiscalPending lists finalized sales whose fiscal status is
	// pending or rejected, for operator follow-up.
	ListFiscalPending(ctx context.Context, companyID id.ID) ([]Sale, error)

	// List retrieves sales with filtering.
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)

	// LinkItemsToReturn sets (or clears, with nil) the return back-link
	// on the given sale items. Used by return creation and cancellation.
	LinkItemsToReturn(ctx context.Context, saleItemIDs []id.ID, returnID *id.ID) error

	// HighestTradeCode returns the highest trade code stamped on any
	// sale of the company, or empty when none exists.
	HighestTradeCode(ctx context.Context, companyID id.ID) (string, error)

	// TradeCodeExists checks the sale-side back-references for a code.
	TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error)
}

// ListFilter for sale queries.
type ListFilter struct {
	CompanyID  *id.ID
	OperatorID *id.ID
	CustomerID *id.ID
	Status     *Status
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
