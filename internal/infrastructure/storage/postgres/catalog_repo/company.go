package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"caixa/internal/domain/catalogs/company"
	"caixa/internal/infrastructure/storage/postgres"
)

const companiesTable = "cat_companies"

var companyColumns = []string{
	"id", "deletion_mark", "version", "attributes",
	"code", "name", "parent_id", "is_folder",
	"cnpj", "trade_name", "state_registration", "crt",
	"city_code", "state_code", "environment", "fiscal_enabled",
	"no_product_tax", "no_product_description",
}

// CompanyRepo implements company.Repository.
type CompanyRepo struct {
	*BaseCatalogRepo[*company.Company]
}

// NewCompanyRepo creates a new company repository.
func NewCompanyRepo(txm *postgres.TxManager) *CompanyRepo {
	return &CompanyRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			companiesTable,
			companyColumns,
			func() *company.Company { return &company.Company{} },
		),
	}
}

// FindByCNPJ retrieves a company by CNPJ.
func (r *CompanyRepo) FindByCNPJ(ctx context.Context, cnpj string) (*company.Company, error) {
	q := r.Builder().
		Select(companyColumns...).
		From(companiesTable).
		Where(squirrel.Eq{"cnpj": cnpj}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

// Ensure interface compliance.
var _ company.Repository = (*CompanyRepo)(nil)
