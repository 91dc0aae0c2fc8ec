// Package auth provides operator authentication.
package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
	"caixa/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxPINAttempts int
	LockDuration   time.Duration
	PINMinLength   int
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxPINAttempts: 5,
		LockDuration:   15 * time.Minute,
		PINMinLength:   4,
	}
}

// Service provides operator authentication logic.
type Service struct {
	operators  OperatorRepository
	jwtService *JWTService
	config     ServiceConfig
}

// NewService creates a new auth service.
func NewService(operators OperatorRepository, jwtService *JWTService, config ServiceConfig) *Service {
	return &Service{
		operators:  operators,
		jwtService: jwtService,
		config:     config,
	}
}

// Login authenticates an operator by login and PIN.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Session, error) {
	op, err := s.operators.GetByLogin(ctx, creds.Login)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid credentials")
	}
	if err := op.CanLogin(); err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PINHash), []byte(creds.PIN)); err != nil {
		op.RecordFailedPIN(s.config.MaxPINAttempts, s.config.LockDuration)
		_ = s.operators.Update(ctx, op)
		return nil, apperror.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.jwtService.GenerateToken(op)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	op.RecordSuccessfulLogin()
	_ = s.operators.Update(ctx, op)

	logger.Info(ctx, "operator logged in",
		"operator_id", op.ID,
		"login", op.Login,
		"receipt_series", op.ReceiptSeries)

	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Operator:  op,
	}, nil
}

// CreateOperator registers a new operator. Manager-only at the HTTP layer.
func (s *Service) CreateOperator(ctx context.Context, companyID id.ID, login, name, pin string, receiptSeries int, isManager bool) (*Operator, error) {
	if login == "" {
		return nil, apperror.NewValidation("login is required").WithDetail("field", "login")
	}
	if len(pin) < s.config.PINMinLength {
		return nil, apperror.NewValidation(
			fmt.Sprintf("pin must be at least %d digits", s.config.PINMinLength),
		).WithDetail("field", "pin")
	}

	exists, err := s.operators.Exists(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("check login exists: %w", err)
	}
	if exists {
		return nil, apperror.NewConflict("login already taken").WithDetail("login", login)
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	op := NewOperator(companyID, login, name, string(pinHash))
	op.ReceiptSeries = receiptSeries
	op.IsManager = isManager

	if err := op.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.operators.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}

	logger.Info(ctx, "operator created",
		"operator_id", op.ID,
		"login", op.Login)

	return op, nil
}

// ChangePIN replaces an operator's PIN after verifying the current one.
func (s *Service) ChangePIN(ctx context.Context, operatorID id.ID, currentPIN, newPIN string) error {
	if len(newPIN) < s.config.PINMinLength {
		return apperror.NewValidation(
			fmt.Sprintf("pin must be at least %d digits", s.config.PINMinLength),
		).WithDetail("field", "pin")
	}

	op, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		return apperror.NewNotFound("operator", operatorID.String())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PINHash), []byte(currentPIN)); err != nil {
		return apperror.NewUnauthorized("invalid credentials")
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	op.PINHash = string(pinHash)

	if err := s.operators.Update(ctx, op); err != nil {
		return fmt.Errorf("update operator: %w", err)
	}

	logger.Info(ctx, "operator pin changed", "operator_id", op.ID)
	return nil
}

// GetOperatorByID retrieves an operator.
func (s *Service) GetOperatorByID(ctx context.Context, operatorID id.ID) (*Operator, error) {
	op, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		return nil, apperror.NewNotFound("operator", operatorID.String())
	}
	return op, nil
}

// ListOperators lists operators with filtering.
func (s *Service) ListOperators(ctx context.Context, filter OperatorFilter) ([]Operator, int, error) {
	return s.operators.List(ctx, filter)
}

// ValidateToken validates a session token and returns the operator context.
func (s *Service) ValidateToken(tokenString string) (*appctx.OperatorContext, error) {
	op, err := s.jwtService.ValidateToken(tokenString)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid token")
	}
	return op, nil
}
