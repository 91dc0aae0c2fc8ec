// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// OperatorContext carries the authenticated POS operator.
//
// ReceiptSeries is the numbering lane assigned to this operator's terminal.
// Zero means the operator has no fiscal series configured; fiscal flows must
// refuse to run in that case instead of guessing a default.
type OperatorContext struct {
	OperatorID    string
	CompanyID     string
	Login         string
	Name          string
	ReceiptSeries int
	IsManager     bool
	SessionID     string
}

type operatorContextKey struct{}

// WithOperator adds OperatorContext to context.
func WithOperator(ctx context.Context, op *OperatorContext) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns OperatorContext from context.
func GetOperator(ctx context.Context) *OperatorContext {
	if v, ok := ctx.Value(operatorContextKey{}).(*OperatorContext); ok {
		return v
	}
	return nil
}

// GetOperatorID returns operator ID from context or empty string.
func GetOperatorID(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.OperatorID
	}
	return ""
}

// GetCompanyID returns company ID from context or empty string.
func GetCompanyID(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.CompanyID
	}
	return ""
}

// GetReceiptSeries returns the operator's fiscal series, or 0 when unconfigured.
func GetReceiptSeries(ctx context.Context) int {
	if op := GetOperator(ctx); op != nil {
		return op.ReceiptSeries
	}
	return 0
}

// IsManager reports whether the current operator has manager rights.
func IsManager(ctx context.Context) bool {
	if op := GetOperator(ctx); op != nil {
		return op.IsManager
	}
	return false
}
