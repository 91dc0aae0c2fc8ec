// Package auth provides operator authentication.
package auth

import (
	"context"

	"caixa/internal/core/id"
)

// OperatorRepository defines operator storage operations.
type OperatorRepository interface {
	// Create creates a new operator.
	Create(ctx context.Context, op *Operator) error

	// GetByID retrieves an operator by ID.
	GetByID(ctx context.Context, operatorID id.ID) (*Operator, error)

	// GetByLogin retrieves an operator by login.
	GetByLogin(ctx context.Context, login string) (*Operator, error)

	// Update updates operator data.
	Update(ctx context.Context, op *Operator) error

	// List retrieves operators with filtering.
	List(ctx context.Context, filter OperatorFilter) ([]Operator, int, error)

	// Exists checks if a login is already taken.
	Exists(ctx context.Context, login string) (bool, error)
}

// OperatorFilter for listing operators.
type OperatorFilter struct {
	Search    string
	IsActive  *bool
	IsManager *bool
	Limit     int
	Offset    int
}
