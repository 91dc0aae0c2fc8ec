// Package sale provides the Sale document: the cart turned into a
// persisted, optionally fiscal, stock-moving transaction.
package sale

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/cart"
	"caixa/internal/domain/fiscal"
)

// Status of the sale lifecycle. The fiscal sub-state lives in
// Fiscal.Status and evolves independently: a finalized sale is never
// reverted because the fiscal document failed.
type Status string

const (
	// StatusInProgress - held draft, resumable by the operator.
	StatusInProgress Status = "in_progress"
	// StatusFinalized - paid and closed. Terminal.
	StatusFinalized Status = "finalized"
)

// Sale represents a POS sale document.
type Sale struct {
	entity.Document

	// CustomerID is optional; anonymous consumer sales carry none.
	CustomerID *id.ID `db:"customer_id" json:"customerId,omitempty"`

	Status Status `db:"status" json:"status"`

	// Totals computed by the cart aggregator at hold/finalize time.
	Subtotal           types.Money         `db:"subtotal" json:"subtotal"`
	ItemDiscountTotal  types.Money         `db:"item_discount_total" json:"itemDiscountTotal"`
	OrderDiscountTotal types.Money         `db:"order_discount_total" json:"orderDiscountTotal"`
	AdjustmentAmount   types.Money         `db:"adjustment_amount" json:"adjustmentAmount"`
	AdjustmentKind     cart.AdjustmentKind `db:"adjustment_kind" json:"adjustmentKind"`
	GrandTotal         types.Money         `db:"grand_total" json:"grandTotal"`

	// Payment is set at finalization. JSONB envelope keyed by kind.
	Payment cart.Payment `db:"payment" json:"payment"`

	// Fiscal linkage. The reserved number survives rejection and
	// transport failure; re-emission reuses it. Stored in fiscal_*
	// columns managed by UpdateFiscal, outside the header version.
	Fiscal fiscal.DocumentInfo `db:"fiscal" json:"fiscal"`

	// TradeCode is stamped by a processed return against this sale.
	TradeCode string `db:"trade_code" json:"tradeCode,omitempty"`

	FinalizedAt *time.Time `db:"finalized_at" json:"finalizedAt,omitempty"`

	// Table part.
	Items []SaleItem `db:"-" json:"items,omitempty"`
}

// SaleItem is a persisted cart line.
type SaleItem struct {
	ID     id.ID `db:"id" json:"id"`
	SaleID id.ID `db:"sale_id" json:"saleId"`

	// LineKey is the client idempotency key. Item reconciliation diffs
	// incoming lines against persisted items by this key, so a double
	// finalize never duplicates rows.
	LineKey id.ID `db:"line_key" json:"lineKey"`

	// ProductID is nil for product-less lines priced ad hoc.
	ProductID *id.ID `db:"product_id" json:"productId,omitempty"`

	Description string         `db:"description" json:"description"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Discount    types.Money    `db:"discount" json:"discount"`
	Addition    types.Money    `db:"addition" json:"addition"`
	Total       types.Money    `db:"total" json:"total"`

	// Tax is frozen at sale time; catalog edits never change it.
	Tax fiscal.TaxSnapshot `db:"tax" json:"tax"`

	// ReturnID links the item to the return that took it back.
	ReturnID *id.ID `db:"return_id" json:"returnId,omitempty"`
}

// NewSale creates an in_progress sale for the given operator.
func NewSale(companyID, operatorID id.ID) *Sale {
	return &Sale{
		Document: entity.NewDocument(companyID, operatorID),
		Status:   StatusInProgress,
		Fiscal:   fiscal.DocumentInfo{Status: fiscal.StatusNotApplicable},
	}
}

// Validate implements entity.Validatable.
func (s *Sale) Validate(ctx context.Context) error {
	if err := s.Document.Validate(ctx); err != nil {
		return err
	}
	if s.Status != StatusInProgress && s.Status != StatusFinalized {
		return apperror.NewValidation("unknown sale status").
			WithDetail("status", string(s.Status))
	}
	return nil
}

// IsFinalized reports whether the sale is closed.
func (s *Sale) IsFinalized() bool {
	return s.Status == StatusFinalized
}

// ApplyTotals copies aggregated totals onto the document.
func (s *Sale) ApplyTotals(t cart.Totals) {
	s.Subtotal = t.Subtotal
	s.ItemDiscountTotal = t.ItemDiscountTotal
	s.OrderDiscountTotal = t.OrderDiscountTotal
	s.AdjustmentAmount = t.AdjustmentAmount
	s.AdjustmentKind = t.AdjustmentKind
	s.GrandTotal = t.GrandTotal
}

// MarkFinalized closes the sale.
func (s *Sale) MarkFinalized() {
	now := time.Now()
	s.Status = StatusFinalized
	s.FinalizedAt = &now
	s.Touch()
}
