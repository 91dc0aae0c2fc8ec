// Package entity provides core domain entities.
package entity

import (
	"time"

	"caixa/internal/core/id"
	"caixa/internal/core/types"
)

// RecordType defines movement direction for the stock register.
type RecordType string

const (
	// RecordTypeReceipt increases balance
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeExpense decreases balance
	RecordTypeExpense RecordType = "expense"
)

// MovementKind classifies why stock changed.
type MovementKind string

const (
	// MovementDirectSale is a direct decrement of the sold product's stock.
	MovementDirectSale MovementKind = "direct-sale"
	// MovementRecipeConsumption is an ingredient decrement resolved from a
	// sold product's recipe (bill of materials).
	MovementRecipeConsumption MovementKind = "consumption-by-recipe"
	// MovementReturnCredit credits the sold product's own stock on return.
	// Ingredients are never re-credited, even when the original decrement
	// was recipe-based.
	MovementReturnCredit MovementKind = "return-credit"
)

// MovementBase contains common fields for all register movements.
// Movements are immutable - they are never updated, only appended.
type MovementBase struct {
	// LineID is unique identifier for this movement line (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// RecorderID is the document that created this movement
	RecorderID id.ID `db:"recorder_id" json:"recorderId"`

	// RecorderType is the document type (e.g., "Sale", "Return")
	RecorderType string `db:"recorder_type" json:"recorderType"`

	// Period is the business date for the movement (for period-based queries)
	Period time.Time `db:"period" json:"period"`

	// RecordType: receipt or expense
	RecordType RecordType `db:"record_type" json:"recordType"`

	// CreatedAt is when the movement was recorded
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovementBase creates a new movement base with generated LineID.
func NewMovementBase(recorderID id.ID, recorderType string, period time.Time, recordType RecordType) MovementBase {
	return MovementBase{
		LineID:       id.New(),
		RecorderID:   recorderID,
		RecorderType: recorderType,
		Period:       period,
		RecordType:   recordType,
		CreatedAt:    time.Now().UTC(),
	}
}

// StockMovement is an append-only ledger entry in the stock register.
type StockMovement struct {
	MovementBase

	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`

	// Kind explains the origin of the movement.
	Kind MovementKind `db:"kind" json:"kind"`

	// SaleItemID links the movement to the originating sale line, when known.
	SaleItemID *id.ID `db:"sale_item_id" json:"saleItemId,omitempty"`
}

// NewStockMovement creates a new stock movement.
func NewStockMovement(
	recorderID id.ID,
	recorderType string,
	period time.Time,
	recordType RecordType,
	kind MovementKind,
	productID id.ID,
	quantity types.Quantity,
) StockMovement {
	return StockMovement{
		MovementBase: NewMovementBase(recorderID, recorderType, period, recordType),
		ProductID:    productID,
		Quantity:     quantity,
		Kind:         kind,
	}
}

// SignedQuantity returns quantity with sign based on record type.
// Receipt = positive, Expense = negative.
func (m *StockMovement) SignedQuantity() types.Quantity {
	if m.RecordType == RecordTypeExpense {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// StockBalance is the current on-hand quantity per product.
// Maintained alongside the ledger, floored at zero on expense.
type StockBalance struct {
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`

	LastMovementAt time.Time `db:"last_movement_at" json:"lastMovementAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
