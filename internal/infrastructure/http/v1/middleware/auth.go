package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
)

// TokenValidator validates a session token into an operator context.
type TokenValidator interface {
	ValidateToken(tokenString string) (*appctx.OperatorContext, error)
}

// Auth middleware validates session tokens and populates operator context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// Check Bearer prefix
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		op, err := validator.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		// Add operator to context
		ctx := appctx.WithOperator(c.Request.Context(), op)
		c.Request = c.Request.WithContext(ctx)

		// Store in gin context for easy access
		c.Set("operator_id", op.OperatorID)
		c.Set("company_id", op.CompanyID)

		c.Next()
	}
}

// RequireManager restricts a route to operators with manager rights.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := appctx.GetOperator(c.Request.Context())
		if op == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !op.IsManager {
			_ = c.Error(apperror.NewForbidden("manager rights required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
