package company

import (
	"context"

	"caixa/internal/domain"
)

// Repository defines the interface for Company persistence.
type Repository interface {
	domain.CatalogRepository[*Company]

	// FindByCNPJ retrieves a company by CNPJ.
	FindByCNPJ(ctx context.Context, cnpj string) (*Company, error)
}
