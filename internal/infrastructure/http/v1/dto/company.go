package dto

import (
	"caixa/internal/core/entity"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/fiscal"
)

// CreateCompanyRequest for creating issuing companies.
type CreateCompanyRequest struct {
	Code                 string              `json:"code"`
	Name                 string              `json:"name" binding:"required"`
	CNPJ                 string              `json:"cnpj" binding:"required"`
	TradeName            string              `json:"tradeName"`
	StateRegistration    string              `json:"stateRegistration"`
	CRT                  string              `json:"crt"`
	CityCode             string              `json:"cityCode"`
	StateCode            string              `json:"stateCode"`
	Environment          company.Environment `json:"environment"`
	FiscalEnabled        bool                `json:"fiscalEnabled"`
	NoProductTax         fiscal.TaxSnapshot  `json:"noProductTax"`
	NoProductDescription string              `json:"noProductDescription"`
	Attributes           entity.Attributes   `json:"attributes"`
}

// ToEntity converts the request into a domain company.
func (r CreateCompanyRequest) ToEntity() *company.Company {
	c := company.NewCompany(r.Code, r.Name, r.CNPJ)
	c.TradeName = r.TradeName
	c.StateRegistration = r.StateRegistration
	c.CRT = r.CRT
	c.CityCode = r.CityCode
	c.StateCode = r.StateCode
	if r.Environment != "" {
		c.Environment = r.Environment
	}
	c.FiscalEnabled = r.FiscalEnabled
	c.NoProductTax = r.NoProductTax
	c.NoProductDescription = r.NoProductDescription
	c.Attributes = r.Attributes
	return c
}

// UpdateCompanyRequest for updating companies.
type UpdateCompanyRequest struct {
	Code                 *string              `json:"code"`
	Name                 *string              `json:"name"`
	TradeName            *string              `json:"tradeName"`
	StateRegistration    *string              `json:"stateRegistration"`
	CRT                  *string              `json:"crt"`
	CityCode             *string              `json:"cityCode"`
	StateCode            *string              `json:"stateCode"`
	Environment          *company.Environment `json:"environment"`
	FiscalEnabled        *bool                `json:"fiscalEnabled"`
	NoProductTax         *fiscal.TaxSnapshot  `json:"noProductTax"`
	NoProductDescription *string              `json:"noProductDescription"`
	Attributes           entity.Attributes    `json:"attributes"`
	Version              int                  `json:"version" binding:"required,min=1"`
}

// ApplyTo applies non-nil fields onto an existing company.
func (r UpdateCompanyRequest) ApplyTo(c *company.Company) {
	if r.Code != nil {
		c.Code = *r.Code
	}
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.TradeName != nil {
		c.TradeName = *r.TradeName
	}
	if r.StateRegistration != nil {
		c.StateRegistration = *r.StateRegistration
	}
	if r.CRT != nil {
		c.CRT = *r.CRT
	}
	if r.CityCode != nil {
		c.CityCode = *r.CityCode
	}
	if r.StateCode != nil {
		c.StateCode = *r.StateCode
	}
	if r.Environment != nil {
		c.Environment = *r.Environment
	}
	if r.FiscalEnabled != nil {
		c.FiscalEnabled = *r.FiscalEnabled
	}
	if r.NoProductTax != nil {
		c.NoProductTax = *r.NoProductTax
	}
	if r.NoProductDescription != nil {
		c.NoProductDescription = *r.NoProductDescription
	}
	if r.Attributes != nil {
		c.Attributes = r.Attributes
	}
	c.Version = r.Version
}

// CompanyResponse represents a company in API responses.
type CompanyResponse struct {
	CatalogResponse
	CNPJ                 string              `json:"cnpj"`
	TradeName            string              `json:"tradeName,omitempty"`
	StateRegistration    string              `json:"stateRegistration"`
	CRT                  string              `json:"crt"`
	CityCode             string              `json:"cityCode"`
	StateCode            string              `json:"stateCode"`
	Environment          company.Environment `json:"environment"`
	FiscalEnabled        bool                `json:"fiscalEnabled"`
	NoProductTax         fiscal.TaxSnapshot  `json:"noProductTax"`
	NoProductDescription string              `json:"noProductDescription,omitempty"`
}

// FromCompany creates a response from a domain company.
func FromCompany(c *company.Company) CompanyResponse {
	return CompanyResponse{
		CatalogResponse:      FromCatalog(c.Catalog),
		CNPJ:                 c.CNPJ,
		TradeName:            c.TradeName,
		StateRegistration:    c.StateRegistration,
		CRT:                  c.CRT,
		CityCode:             c.CityCode,
		StateCode:            c.StateCode,
		Environment:          c.Environment,
		FiscalEnabled:        c.FiscalEnabled,
		NoProductTax:         c.NoProductTax,
		NoProductDescription: c.NoProductDescription,
	}
}
