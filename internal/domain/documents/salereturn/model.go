// Package salereturn provides the Return document: goods taken back
// against a finalized sale, with its own trade code and optional
// corrective fiscal document.
package salereturn

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/fiscal"
)

// ConfirmationPhrase is the literal text the operator must type to run
// a manual return against a sale that carries an authorized consumer
// receipt, acknowledging that no fiscal deduction will occur.
const ConfirmationPhrase = "CONFIRMO DEVOLUCAO SEM ABATIMENTO FISCAL"

// Kind of the return.
type Kind string

const (
	KindTotal   Kind = "total"
	KindPartial Kind = "partial"
)

// RefundMethod is how the customer is made whole.
type RefundMethod string

const (
	RefundCash         RefundMethod = "cash"
	RefundStoreCredit  RefundMethod = "store-credit"
	RefundExchange     RefundMethod = "exchange"
	RefundCardReversal RefundMethod = "card-reversal"
)

// Status of the return lifecycle.
type Status string

const (
	// StatusPending - created, goods not yet credited back.
	StatusPending Status = "pending"
	// StatusProcessed - stock credited, origin sale stamped. Terminal.
	StatusProcessed Status = "processed"
	// StatusCanceled - abandoned before processing. Terminal.
	StatusCanceled Status = "canceled"
)

// Return represents a return document.
type Return struct {
	entity.Document

	// TradeCode is the human-readable sequential code, unique per
	// company across both the return ledger and sale back-references.
	TradeCode string `db:"trade_code" json:"tradeCode"`

	CustomerID *id.ID `db:"customer_id" json:"customerId,omitempty"`

	OriginSaleID     id.ID  `db:"origin_sale_id" json:"originSaleId"`
	OriginSaleNumber string `db:"origin_sale_number" json:"originSaleNumber"`

	Kind         Kind         `db:"kind" json:"kind"`
	RefundMethod RefundMethod `db:"refund_method" json:"refundMethod"`
	Reason       string       `db:"reason" json:"reason,omitempty"`
	Notes        string       `db:"notes" json:"notes,omitempty"`

	Status Status      `db:"status" json:"status"`
	Total  types.Money `db:"total" json:"total"`

	// Fiscal linkage of the corrective document, when one was emitted.
	Fiscal fiscal.DocumentInfo `db:"fiscal" json:"fiscal"`

	ProcessedAt *time.Time `db:"processed_at" json:"processedAt,omitempty"`
	ProcessedBy *id.ID     `db:"processed_by" json:"processedBy,omitempty"`

	// Table part.
	Items []ReturnItem `db:"-" json:"items,omitempty"`
}

// ReturnItem mirrors the returned portion of a sale item.
type ReturnItem struct {
	ID       id.ID `db:"id" json:"id"`
	ReturnID id.ID `db:"return_id" json:"returnId"`

	// SaleItemID references the origin sale item. A sale item belongs to
	// at most one pending or processed return.
	SaleItemID id.ID `db:"sale_item_id" json:"saleItemId"`

	ProductID   *id.ID         `db:"product_id" json:"productId,omitempty"`
	Description string         `db:"description" json:"description"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Total       types.Money    `db:"total" json:"total"`
	Reason      string         `db:"reason" json:"reason,omitempty"`

	// Tax is copied from the origin item for the corrective document.
	Tax fiscal.TaxSnapshot `db:"tax" json:"tax"`
}

// NewReturn creates a pending return against an origin sale.
func NewReturn(companyID, operatorID, originSaleID id.ID) *Return {
	return &Return{
		Document:     entity.NewDocument(companyID, operatorID),
		OriginSaleID: originSaleID,
		Status:       StatusPending,
		Fiscal:       fiscal.DocumentInfo{Status: fiscal.StatusNotApplicable},
	}
}

// Validate implements entity.Validatable.
func (r *Return) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(r.OriginSaleID) {
		return apperror.NewValidation("origin sale is required").
			WithDetail("field", "originSaleId")
	}
	if r.Kind != KindTotal && r.Kind != KindPartial {
		return apperror.NewValidation("unknown return kind").
			WithDetail("kind", string(r.Kind))
	}
	switch r.RefundMethod {
	case RefundCash, RefundStoreCredit, RefundExchange, RefundCardReversal:
	default:
		return apperror.NewValidation("unknown refund method").
			WithDetail("refundMethod", string(r.RefundMethod))
	}
	if len(r.Items) == 0 {
		return apperror.NewValidation("return has no items").
			WithDetail("field", "items")
	}
	return nil
}

// MarkProcessed closes the return.
func (r *Return) MarkProcessed(operatorID id.ID) {
	now := time.Now()
	r.Status = StatusProcessed
	r.ProcessedAt = &now
	r.ProcessedBy = &operatorID
	r.Touch()
}
