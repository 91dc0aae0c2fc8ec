package company

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/tx"
	"caixa/internal/domain"
)

// Service provides business logic for the Company catalog.
type Service struct {
	*domain.CatalogService[*Company]
	repo Repository
}

// NewService creates a new Company service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Company]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "company",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
	}

	base.Hooks().OnBeforeCreate(svc.checkCNPJ)
	base.Hooks().OnBeforeUpdate(svc.checkCNPJ)

	return svc
}

func (s *Service) checkCNPJ(ctx context.Context, c *Company) error {
	existing, err := s.repo.FindByCNPJ(ctx, c.CNPJ)
	if err != nil {
		return nil
	}
	if existing.ID != c.ID {
		return apperror.NewConflict("company with this CNPJ already exists").
			WithDetail("cnpj", c.CNPJ)
	}
	return nil
}

// FindByCNPJ retrieves a company by CNPJ.
func (s *Service) FindByCNPJ(ctx context.Context, cnpj string) (*Company, error) {
	c, err := s.repo.FindByCNPJ(ctx, cnpj)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("company", cnpj)
		}
		return nil, err
	}
	return c, nil
}
