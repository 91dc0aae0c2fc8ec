package handlers

import (
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/infrastructure/http/v1/dto"
)

// CompanyHTTPHandler is an alias to keep wiring short.
type CompanyHTTPHandler = CatalogHandler[
	*company.Company,
	dto.CreateCompanyRequest,
	dto.UpdateCompanyRequest,
]

// NewCompanyHandler creates a company handler over the generic catalog CRUD.
func NewCompanyHandler(base *BaseHandler, service *company.Service) *CompanyHTTPHandler {
	config := CatalogHandlerConfig[
		*company.Company,
		dto.CreateCompanyRequest,
		dto.UpdateCompanyRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "company",

		MapCreateDTO: func(req dto.CreateCompanyRequest) *company.Company {
			return req.ToEntity()
		},

		MapUpdateDTO: func(req dto.UpdateCompanyRequest, existing *company.Company) *company.Company {
			req.ApplyTo(existing)
			return existing
		},

		MapToDTO: func(entity *company.Company) any {
			return dto.FromCompany(entity)
		},
	}

	return NewCatalogHandler(base, config)
}
