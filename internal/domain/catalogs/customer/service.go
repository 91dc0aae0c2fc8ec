package customer

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/tx"
	"caixa/internal/domain"
)

// Service provides business logic for the Customer catalog.
type Service struct {
	*domain.CatalogService[*Customer]
	repo Repository
}

// NewService creates a new Customer service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Customer]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "customer",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
	}

	base.Hooks().OnBeforeCreate(svc.checkTaxID)
	base.Hooks().OnBeforeUpdate(svc.checkTaxID)

	return svc
}

func (s *Service) checkTaxID(ctx context.Context, c *Customer) error {
	if c.TaxID == nil || *c.TaxID == "" {
		return nil
	}
	existing, err := s.repo.FindByTaxID(ctx, *c.TaxID)
	if err != nil {
		return nil
	}
	if existing.ID != c.ID {
		return apperror.NewConflict("customer with this tax id already exists").
			WithDetail("taxId", *c.TaxID)
	}
	return nil
}

// FindByTaxID retrieves a customer by CPF/CNPJ.
func (s *Service) FindByTaxID(ctx context.Context, taxID string) (*Customer, error) {
	c, err := s.repo.FindByTaxID(ctx, taxID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("customer", taxID)
		}
		return nil, err
	}
	return c, nil
}
