package dto

import (
	"caixa/internal/core/entity"
	"caixa/internal/domain/catalogs/customer"
)

// CreateCustomerRequest for creating customers.
type CreateCustomerRequest struct {
	Code       string            `json:"code"`
	Name       string            `json:"name" binding:"required"`
	ParentID   *string           `json:"parentId"`
	IsFolder   bool              `json:"isFolder"`
	TaxID      *string           `json:"taxId"`
	Email      *string           `json:"email"`
	Phone      *string           `json:"phone"`
	Attributes entity.Attributes `json:"attributes"`
}

// ToEntity converts the request into a domain customer.
func (r CreateCustomerRequest) ToEntity() *customer.Customer {
	c := customer.NewCustomer(r.Code, r.Name)
	c.ParentID = r.ParentID
	c.IsFolder = r.IsFolder
	c.TaxID = r.TaxID
	c.Email = r.Email
	c.Phone = r.Phone
	c.Attributes = r.Attributes
	return c
}

// UpdateCustomerRequest for updating customers.
type UpdateCustomerRequest struct {
	Code       *string           `json:"code"`
	Name       *string           `json:"name"`
	ParentID   *string           `json:"parentId"`
	TaxID      *string           `json:"taxId"`
	Email      *string           `json:"email"`
	Phone      *string           `json:"phone"`
	Attributes entity.Attributes `json:"attributes"`
	Version    int               `json:"version" binding:"required,min=1"`
}

// ApplyTo applies non-nil fields onto an existing customer.
func (r UpdateCustomerRequest) ApplyTo(c *customer.Customer) {
	if r.Code != nil {
		c.Code = *r.Code
	}
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.ParentID != nil {
		c.ParentID = r.ParentID
	}
	if r.TaxID != nil {
		c.TaxID = r.TaxID
	}
	if r.Email != nil {
		c.Email = r.Email
	}
	if r.Phone != nil {
		c.Phone = r.Phone
	}
	if r.Attributes != nil {
		c.Attributes = r.Attributes
	}
	c.Version = r.Version
}

// CustomerResponse represents a customer in API responses.
type CustomerResponse struct {
	CatalogResponse
	TaxID *string `json:"taxId,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// FromCustomer creates a response from a domain customer.
func FromCustomer(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		CatalogResponse: FromCatalog(c.Catalog),
		TaxID:           c.TaxID,
		Email:           c.Email,
		Phone:           c.Phone,
	}
}
