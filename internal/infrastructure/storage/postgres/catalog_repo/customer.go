package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"caixa/internal/domain/catalogs/customer"
	"caixa/internal/infrastructure/storage/postgres"
)

const customersTable = "cat_customers"

var customerColumns = []string{
	"id", "deletion_mark", "version", "attributes",
	"code", "name", "parent_id", "is_folder",
	"tax_id", "email", "phone",
}

// CustomerRepo implements customer.Repository.
type CustomerRepo struct {
	*BaseCatalogRepo[*customer.Customer]
}

// NewCustomerRepo creates a new customer repository.
func NewCustomerRepo(txm *postgres.TxManager) *CustomerRepo {
	return &CustomerRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			customersTable,
			customerColumns,
			func() *customer.Customer { return &customer.Customer{} },
		),
	}
}

// FindByTaxID retrieves a customer by CPF/CNPJ.
func (r *CustomerRepo) FindByTaxID(ctx context.Context, taxID string) (*customer.Customer, error) {
	q := r.Builder().
		Select(customerColumns...).
		From(customersTable).
		Where(squirrel.Eq{"tax_id": taxID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

// Ensure interface compliance.
var _ customer.Repository = (*CustomerRepo)(nil)
