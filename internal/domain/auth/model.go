// Package auth provides operator authentication.
package auth

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
)

// Operator represents a cashier or manager who can open a till session.
//
// Operators authenticate with a short numeric PIN instead of a password;
// the PIN is stored as a bcrypt hash. ReceiptSeries is the fiscal
// numbering lane bound to the operator's terminal. Zero means no series
// is configured and fiscal emission must refuse to run.
type Operator struct {
	ID                id.ID      `db:"id" json:"id"`
	CompanyID         id.ID      `db:"company_id" json:"companyId"`
	Login             string     `db:"login" json:"login"`
	Name              string     `db:"name" json:"name"`
	PINHash           string     `db:"pin_hash" json:"-"`
	ReceiptSeries     int        `db:"receipt_series" json:"receiptSeries"`
	IsManager         bool       `db:"is_manager" json:"isManager"`
	IsActive          bool       `db:"is_active" json:"isActive"`
	LastLoginAt       *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	FailedPINAttempts int        `db:"failed_pin_attempts" json:"-"`
	LockedUntil       *time.Time `db:"locked_until" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
	Version           int        `db:"version" json:"version"`
}

// NewOperator creates a new operator.
func NewOperator(companyID id.ID, login, name, pinHash string) *Operator {
	return &Operator{
		ID:        id.New(),
		CompanyID: companyID,
		Login:     login,
		Name:      name,
		PINHash:   pinHash,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}
}

// Validate validates operator data.
func (o *Operator) Validate(ctx context.Context) error {
	if o.Login == "" {
		return apperror.NewValidation("login is required").WithDetail("field", "login")
	}
	if o.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if o.ReceiptSeries < 0 {
		return apperror.NewValidation("receipt series cannot be negative").
			WithDetail("field", "receiptSeries")
	}
	return nil
}

// IsLocked returns true if the operator is temporarily locked out.
func (o *Operator) IsLocked() bool {
	if o.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*o.LockedUntil)
}

// CanLogin checks whether the operator may open a session.
func (o *Operator) CanLogin() error {
	if !o.IsActive {
		return apperror.NewForbidden("operator is disabled")
	}
	if o.IsLocked() {
		return apperror.NewForbidden("operator is temporarily locked")
	}
	return nil
}

// RecordFailedPIN increments the failed PIN counter.
func (o *Operator) RecordFailedPIN(maxAttempts int, lockDuration time.Duration) {
	o.FailedPINAttempts++
	if o.FailedPINAttempts >= maxAttempts {
		lockUntil := time.Now().Add(lockDuration)
		o.LockedUntil = &lockUntil
	}
}

// RecordSuccessfulLogin resets the failed PIN counter.
func (o *Operator) RecordSuccessfulLogin() {
	o.FailedPINAttempts = 0
	o.LockedUntil = nil
	now := time.Now()
	o.LastLoginAt = &now
}

// Credentials is a login request.
type Credentials struct {
	Login string `json:"login" binding:"required"`
	PIN   string `json:"pin" binding:"required"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	Operator  *Operator `json:"operator"`
}
