// Package customer provides the Customer catalog. Most POS sales are
// anonymous; a customer is attached when the buyer wants the receipt in
// their name or for store-credit refunds.
package customer

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
)

// Customer represents a buyer known to the store.
type Customer struct {
	entity.Catalog

	// TaxID is a CPF (11 digits) or CNPJ (14 digits), digits only.
	TaxID *string `db:"tax_id" json:"taxId,omitempty"`

	Email *string `db:"email" json:"email,omitempty"`
	Phone *string `db:"phone" json:"phone,omitempty"`
}

// NewCustomer creates a new Customer with required fields.
func NewCustomer(code, name string) *Customer {
	return &Customer{
		Catalog: entity.NewCatalog(code, name),
	}
}

// Validate implements entity.Validatable interface.
func (c *Customer) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.TaxID != nil && *c.TaxID != "" {
		if n := len(*c.TaxID); n != 11 && n != 14 {
			return apperror.NewValidation("tax id must be a CPF (11 digits) or CNPJ (14 digits)").
				WithDetail("field", "taxId")
		}
	}

	return nil
}
