package entity

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
)

// Document is the base type for POS business transactions.
// Examples: Sale, Return.
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, unique within type)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// CompanyID is the owning company
	CompanyID id.ID `db:"company_id" json:"companyId"`

	// OperatorID is the POS operator who created the document
	OperatorID id.ID `db:"operator_id" json:"operatorId"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document with generated ID.
func NewDocument(companyID, operatorID id.ID) Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		CompanyID:    companyID,
		OperatorID:   operatorID,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsNil(d.CompanyID) {
		return apperror.NewValidation("company is required").
			WithDetail("field", "companyId")
	}

	if id.IsNil(d.OperatorID) {
		return apperror.NewValidation("operator is required").
			WithDetail("field", "operatorId")
	}

	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}

	return nil
}

// GetID returns the document ID.
func (d *Document) GetID() id.ID {
	return d.ID
}
