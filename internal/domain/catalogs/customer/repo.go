package customer

import (
	"context"

	"caixa/internal/domain"
)

// Repository defines the interface for Customer persistence.
type Repository interface {
	domain.CatalogRepository[*Customer]

	// FindByTaxID retrieves a customer by CPF/CNPJ.
	FindByTaxID(ctx context.Context, taxID string) (*Customer, error)
}
