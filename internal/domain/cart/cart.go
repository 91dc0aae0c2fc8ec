// Package cart aggregates POS cart lines into sale totals.
//
// Aggregation is pure: it validates the cart and computes totals without
// touching storage. Callers that need side effects (persisting the sale,
// reserving fiscal numbers) run after aggregation succeeds, so an invalid
// cart never leaves a trace.
package cart

import (
	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
)

// Line is a single cart position.
type Line struct {
	// LineKey is the client-generated idempotency key for this line.
	// Re-finalizing the same cart reuses the same keys, which lets the
	// persister reconcile items instead of duplicating them.
	LineKey id.ID `json:"lineKey"`

	// ProductID is nil for ad hoc ("product-less") lines priced manually.
	ProductID *id.ID `json:"productId,omitempty"`

	Description string         `json:"description"`
	Quantity    types.Quantity `json:"quantity"`
	UnitPrice   types.Money    `json:"unitPrice"`
	Discount    types.Money    `json:"discount"`
	Addition    types.Money    `json:"addition"`
}

// Total returns qty×price − discount + addition for the line.
func (l Line) Total() types.Money {
	return l.Quantity.Decimal().Mul(l.UnitPrice).Sub(l.Discount).Add(l.Addition)
}

// Cart is the operator's working set before finalization.
type Cart struct {
	Lines []Line `json:"lines"`

	// OrderDiscount applies to the whole order, after line totals.
	OrderDiscount types.Money `json:"orderDiscount"`

	// TermAdjustment is the payment-term adjustment. Positive means a
	// discount, negative means a surcharge. The persisted magnitude is
	// always non-negative with the kind stored separately.
	TermAdjustment types.Money `json:"termAdjustment"`
}

// AdjustmentKind tells whether the term adjustment reduced or increased
// the total.
type AdjustmentKind string

const (
	AdjustmentDiscount  AdjustmentKind = "discount"
	AdjustmentSurcharge AdjustmentKind = "surcharge"
)

// Totals is the aggregation result.
type Totals struct {
	// Subtotal is the sum of line totals (per-line discounts applied).
	Subtotal types.Money `json:"subtotal"`

	// ItemDiscountTotal is the sum of per-line discounts.
	ItemDiscountTotal types.Money `json:"itemDiscountTotal"`

	// OrderDiscountTotal is the whole-order discount.
	OrderDiscountTotal types.Money `json:"orderDiscountTotal"`

	// AdjustmentAmount is the term adjustment magnitude (non-negative).
	AdjustmentAmount types.Money    `json:"adjustmentAmount"`
	AdjustmentKind   AdjustmentKind `json:"adjustmentKind"`

	GrandTotal types.Money `json:"grandTotal"`
}

// Aggregate validates the cart and computes totals.
//
// An empty cart fails with a validation error before anything else runs;
// finalization must not leave partial state for a cart that was never
// valid.
func Aggregate(c Cart) (Totals, error) {
	if len(c.Lines) == 0 {
		return Totals{}, apperror.NewValidation("cart has no lines").
			WithDetail("field", "lines")
	}

	var totals Totals

	// Line keys drive item reconciliation on finalize, so a duplicate is
	// rejected here instead of surfacing as a unique-index violation later.
	seen := make(map[id.ID]struct{}, len(c.Lines))

	for i, line := range c.Lines {
		if err := validateLine(i, line); err != nil {
			return Totals{}, err
		}

		if _, dup := seen[line.LineKey]; dup {
			return Totals{}, apperror.NewValidation("duplicate line key").
				WithDetail("lineKey", line.LineKey.String()).
				WithDetail("lineIndex", i)
		}
		seen[line.LineKey] = struct{}{}

		lineTotal := line.Total()
		if lineTotal.IsNegative() {
			return Totals{}, apperror.NewValidation("line discount exceeds line amount").
				WithDetail("lineKey", line.LineKey.String()).
				WithDetail("lineIndex", i)
		}

		totals.Subtotal = totals.Subtotal.Add(lineTotal)
		totals.ItemDiscountTotal = totals.ItemDiscountTotal.Add(line.Discount)
	}

	if c.OrderDiscount.IsNegative() {
		return Totals{}, apperror.NewValidation("order discount cannot be negative").
			WithDetail("field", "orderDiscount")
	}
	if c.OrderDiscount.GreaterThan(totals.Subtotal) {
		return Totals{}, apperror.NewValidation("order discount exceeds subtotal").
			WithDetail("field", "orderDiscount")
	}
	totals.OrderDiscountTotal = c.OrderDiscount

	// Sign carries the kind, magnitude is stored positive.
	if c.TermAdjustment.IsNegative() {
		totals.AdjustmentKind = AdjustmentSurcharge
		totals.AdjustmentAmount = c.TermAdjustment.Neg()
	} else {
		totals.AdjustmentKind = AdjustmentDiscount
		totals.AdjustmentAmount = c.TermAdjustment
	}

	grand := totals.Subtotal.Sub(totals.OrderDiscountTotal)
	if totals.AdjustmentKind == AdjustmentSurcharge {
		grand = grand.Add(totals.AdjustmentAmount)
	} else {
		grand = grand.Sub(totals.AdjustmentAmount)
	}

	if grand.IsNegative() {
		return Totals{}, apperror.NewValidation("discounts exceed cart total").
			WithDetail("field", "termAdjustment")
	}
	totals.GrandTotal = grand

	return totals, nil
}

func validateLine(index int, line Line) error {
	if id.IsNil(line.LineKey) {
		return apperror.NewValidation("line key is required").
			WithDetail("lineIndex", index)
	}
	if !line.Quantity.IsPositive() {
		return apperror.NewValidation("line quantity must be positive").
			WithDetail("lineKey", line.LineKey.String()).
			WithDetail("lineIndex", index)
	}
	if line.UnitPrice.IsNegative() {
		return apperror.NewValidation("line price cannot be negative").
			WithDetail("lineKey", line.LineKey.String()).
			WithDetail("lineIndex", index)
	}
	if line.Discount.IsNegative() || line.Addition.IsNegative() {
		return apperror.NewValidation("line discount and addition cannot be negative").
			WithDetail("lineKey", line.LineKey.String()).
			WithDetail("lineIndex", index)
	}
	if line.ProductID == nil && line.Description == "" {
		return apperror.NewValidation("product-less line requires a description").
			WithDetail("lineKey", line.LineKey.String()).
			WithDetail("lineIndex", index)
	}
	return nil
}
