// Package company provides the Company catalog: the issuing legal
// entities of the installation, including their fiscal configuration.
package company

import (
	"context"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/domain/fiscal"
)

// Environment selects which fiscal authority endpoint the company
// submits to.
type Environment string

const (
	EnvironmentProduction   Environment = "production"
	EnvironmentHomologation Environment = "homologation"
)

// Company is an issuing legal entity.
type Company struct {
	entity.Catalog

	// CNPJ, digits only.
	CNPJ string `db:"cnpj" json:"cnpj"`

	TradeName         string `db:"trade_name" json:"tradeName,omitempty"`
	StateRegistration string `db:"state_registration" json:"stateRegistration"`

	// CRT is the tax regime code (1 = Simples Nacional, 3 = normal).
	CRT string `db:"crt" json:"crt"`

	CityCode  string `db:"city_code" json:"cityCode"`
	StateCode string `db:"state_code" json:"stateCode"`

	// Environment for fiscal submissions.
	Environment Environment `db:"environment" json:"environment"`

	// FiscalEnabled turns fiscal emission on for this company. When off,
	// sales finalize with fiscal status not_applicable.
	FiscalEnabled bool `db:"fiscal_enabled" json:"fiscalEnabled"`

	// NoProductTax is the fiscal snapshot applied to product-less lines
	// (ad hoc items priced at the terminal).
	NoProductTax fiscal.TaxSnapshot `db:"no_product_tax" json:"noProductTax"`

	// NoProductDescription is the document description for such lines
	// when the operator leaves it blank.
	NoProductDescription string `db:"no_product_description" json:"noProductDescription,omitempty"`
}

// NewCompany creates a new Company with required fields.
func NewCompany(code, name, cnpj string) *Company {
	return &Company{
		Catalog:     entity.NewCatalog(code, name),
		CNPJ:        cnpj,
		Environment: EnvironmentHomologation,
	}
}

// Validate implements entity.Validatable interface.
func (c *Company) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if len(c.CNPJ) != 14 {
		return apperror.NewValidation("cnpj must have 14 digits").
			WithDetail("field", "cnpj")
	}

	if c.Environment != EnvironmentProduction && c.Environment != EnvironmentHomologation {
		return apperror.NewValidation("invalid fiscal environment").
			WithDetail("field", "environment").
			WithDetail("value", string(c.Environment))
	}

	if c.FiscalEnabled {
		if c.StateRegistration == "" {
			return apperror.NewValidation("fiscal emission requires a state registration").
				WithDetail("field", "stateRegistration")
		}
		if c.CRT == "" {
			return apperror.NewValidation("fiscal emission requires a tax regime code").
				WithDetail("field", "crt")
		}
	}

	return nil
}

// Issuer builds the document issuer block from the company.
func (c *Company) Issuer() fiscal.Issuer {
	return fiscal.Issuer{
		CNPJ:              c.CNPJ,
		Name:              c.Name,
		TradeName:         c.TradeName,
		StateRegistration: c.StateRegistration,
		CRT:               c.CRT,
		CityCode:          c.CityCode,
		StateCode:         c.StateCode,
	}
}
