package dto

// CreateOperatorRequest for registering a new operator.
type CreateOperatorRequest struct {
	CompanyID     string `json:"companyId" binding:"required,uuid"`
	Login         string `json:"login" binding:"required"`
	Name          string `json:"name" binding:"required"`
	PIN           string `json:"pin" binding:"required,min=4,max=8"`
	ReceiptSeries int    `json:"receiptSeries" binding:"min=0"`
	IsManager     bool   `json:"isManager"`
}

// ChangePINRequest for an operator changing their own PIN.
type ChangePINRequest struct {
	CurrentPIN string `json:"currentPin" binding:"required"`
	NewPIN     string `json:"newPin" binding:"required,min=4,max=8"`
}
