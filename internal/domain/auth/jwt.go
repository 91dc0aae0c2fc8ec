// Package auth provides operator authentication.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "caixa",
		AccessTokenTTL: 12 * time.Hour,
	}
}

// Claims represents JWT claims for an operator session.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID    string `json:"oid"`
	CompanyID     string `json:"cid"`
	Login         string `json:"login"`
	Name          string `json:"name"`
	ReceiptSeries int    `json:"series"`
	IsManager     bool   `json:"mgr,omitempty"`
	SessionID     string `json:"sid"`
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateToken generates a session token for an operator.
func (s *JWTService) GenerateToken(op *Operator) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   op.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OperatorID:    op.ID.String(),
		CompanyID:     op.CompanyID.String(),
		Login:         op.Login,
		Name:          op.Name,
		ReceiptSeries: op.ReceiptSeries,
		IsManager:     op.IsManager,
		SessionID:     id.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT and returns the operator context.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.OperatorContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &appctx.OperatorContext{
		OperatorID:    claims.OperatorID,
		CompanyID:     claims.CompanyID,
		Login:         claims.Login,
		Name:          claims.Name,
		ReceiptSeries: claims.ReceiptSeries,
		IsManager:     claims.IsManager,
		SessionID:     claims.SessionID,
	}, nil
}
