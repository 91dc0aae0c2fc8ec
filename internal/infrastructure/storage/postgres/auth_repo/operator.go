// Package auth_repo provides PostgreSQL implementations for auth repositories.
package auth_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/auth"
	"caixa/internal/infrastructure/storage/postgres"
)

const operatorColumns = `id, company_id, login, name, pin_hash, receipt_series,
	is_manager, is_active, last_login_at, failed_pin_attempts, locked_until,
	created_at, updated_at, version`

// OperatorRepo implements auth.OperatorRepository.
type OperatorRepo struct {
	txm *postgres.TxManager
}

// NewOperatorRepo creates a new operator repository.
func NewOperatorRepo(txm *postgres.TxManager) *OperatorRepo {
	return &OperatorRepo{txm: txm}
}

// Create creates a new operator.
func (r *OperatorRepo) Create(ctx context.Context, op *auth.Operator) error {
	q := r.txm.GetQuerier(ctx)

	query := `
		INSERT INTO operators (
			id, company_id, login, name, pin_hash, receipt_series,
			is_manager, is_active, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.Exec(ctx, query,
		op.ID, op.CompanyID, op.Login, op.Name, op.PINHash, op.ReceiptSeries,
		op.IsManager, op.IsActive, op.CreatedAt, op.UpdatedAt, op.Version,
	)
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}

	return nil
}

// GetByID retrieves operator by ID.
func (r *OperatorRepo) GetByID(ctx context.Context, operatorID id.ID) (*auth.Operator, error) {
	query := fmt.Sprintf(`SELECT %s FROM operators WHERE id = $1`, operatorColumns)
	return r.scanOne(ctx, query, operatorID.String(), operatorID)
}

// GetByLogin retrieves operator by login.
func (r *OperatorRepo) GetByLogin(ctx context.Context, login string) (*auth.Operator, error) {
	query := fmt.Sprintf(`SELECT %s FROM operators WHERE login = $1`, operatorColumns)
	return r.scanOne(ctx, query, login, login)
}

func (r *OperatorRepo) scanOne(ctx context.Context, query, ident string, arg any) (*auth.Operator, error) {
	q := r.txm.GetQuerier(ctx)

	var op auth.Operator
	err := q.QueryRow(ctx, query, arg).Scan(
		&op.ID, &op.CompanyID, &op.Login, &op.Name, &op.PINHash, &op.ReceiptSeries,
		&op.IsManager, &op.IsActive, &op.LastLoginAt, &op.FailedPINAttempts, &op.LockedUntil,
		&op.CreatedAt, &op.UpdatedAt, &op.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("operator", ident)
	}
	if err != nil {
		return nil, fmt.Errorf("query operator: %w", err)
	}

	return &op, nil
}

// Update updates operator data with optimistic locking.
func (r *OperatorRepo) Update(ctx context.Context, op *auth.Operator) error {
	q := r.txm.GetQuerier(ctx)

	query := `
		UPDATE operators SET
			name = $1,
			pin_hash = $2,
			receipt_series = $3,
			is_manager = $4,
			is_active = $5,
			last_login_at = $6,
			failed_pin_attempts = $7,
			locked_until = $8,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $9 AND version = $10
	`

	result, err := q.Exec(ctx, query,
		op.Name, op.PINHash, op.ReceiptSeries, op.IsManager, op.IsActive,
		op.LastLoginAt, op.FailedPINAttempts, op.LockedUntil,
		op.ID, op.Version,
	)
	if err != nil {
		return fmt.Errorf("update operator: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("operator", op.ID)
	}

	op.Version++
	return nil
}

// List retrieves operators with filtering.
func (r *OperatorRepo) List(ctx context.Context, filter auth.OperatorFilter) ([]auth.Operator, int, error) {
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	q := builder.Select(
		"id", "company_id", "login", "name", "pin_hash", "receipt_series",
		"is_manager", "is_active", "last_login_at", "failed_pin_attempts", "locked_until",
		"created_at", "updated_at", "version",
	).From("operators")

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"login": pattern},
			squirrel.ILike{"name": pattern},
		})
	}
	if filter.IsActive != nil {
		q = q.Where(squirrel.Eq{"is_active": *filter.IsActive})
	}
	if filter.IsManager != nil {
		q = q.Where(squirrel.Eq{"is_manager": *filter.IsManager})
	}

	countQ := builder.Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count operators: %w", err)
	}

	q = q.OrderBy("login")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query operators: %w", err)
	}
	defer rows.Close()

	var operators []auth.Operator
	for rows.Next() {
		var op auth.Operator
		if err := rows.Scan(
			&op.ID, &op.CompanyID, &op.Login, &op.Name, &op.PINHash, &op.ReceiptSeries,
			&op.IsManager, &op.IsActive, &op.LastLoginAt, &op.FailedPINAttempts, &op.LockedUntil,
			&op.CreatedAt, &op.UpdatedAt, &op.Version,
		); err != nil {
			return nil, 0, fmt.Errorf("scan operator: %w", err)
		}
		operators = append(operators, op)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate operators: %w", err)
	}

	return operators, total, nil
}

// Exists checks whether a login is already taken.
func (r *OperatorRepo) Exists(ctx context.Context, login string) (bool, error) {
	q := r.txm.GetQuerier(ctx)

	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM operators WHERE login = $1 LIMIT 1`, login).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("operator exists: %w", err)
	}
	return true, nil
}

// Ensure interface compliance.
var _ auth.OperatorRepository = (*OperatorRepo)(nil)
