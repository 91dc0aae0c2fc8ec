// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/domain/registers/stock"
	"caixa/internal/infrastructure/storage/postgres"
)

const (
	stockMovementsTable = "reg_stock_movements"
	stockBalancesTable  = "reg_stock_balances"
)

var stockMovementColumns = []string{
	"line_id", "recorder_id", "recorder_type", "period", "record_type",
	"product_id", "quantity", "kind", "sale_item_id", "created_at",
}

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ApplyMovements inserts ledger rows and maintains balances in one
// transaction. The ledger keeps the full signed history; the balance is
// floored at zero on expense so phantom negative stock never surfaces.
func (r *StockRepo) ApplyMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Fast path: COPY for the ledger rows.
		inserter := postgres.NewBatchInserter(r.txm)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.RecorderID, m.RecorderType, m.Period, m.RecordType,
				m.ProductID, m.Quantity, m.Kind, m.SaleItemID, m.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, stockMovementsTable, stockMovementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}

		querier := r.txm.GetQuerier(ctx)
		for _, m := range movements {
			_, err := querier.Exec(ctx, `
				INSERT INTO reg_stock_balances (product_id, quantity, last_movement_at, updated_at)
				VALUES ($1, GREATEST($2::bigint, 0), $3, NOW())
				ON CONFLICT (product_id) DO UPDATE SET
					quantity = GREATEST(reg_stock_balances.quantity + $2, 0),
					last_movement_at = GREATEST(reg_stock_balances.last_movement_at, $3),
					updated_at = NOW()
			`, m.ProductID, m.SignedQuantity(), m.Period)
			if err != nil {
				return fmt.Errorf("upsert balance: %w", err)
			}
		}

		return nil
	})
}

// GetMovementsByRecorder retrieves all movements for a document.
func (r *StockRepo) GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	q := r.builder.Select(stockMovementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("created_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	return movements, nil
}

// GetBalance returns current balance for a product. A product that
// never moved reports zero.
func (r *StockRepo) GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	var balance entity.StockBalance

	q := r.builder.Select(
		"product_id", "quantity", "last_movement_at", "updated_at",
	).From(stockBalancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return balance, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{
				ProductID: productID,
				Quantity:  0,
			}, nil
		}
		return balance, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

// GetBalances returns balances matching the filter.
func (r *StockRepo) GetBalances(ctx context.Context, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	q := r.builder.Select(
		"product_id", "quantity", "last_movement_at", "updated_at",
	).From(stockBalancesTable)

	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}

	if filter.MinQuantity != nil {
		q = q.Where(squirrel.GtOrEq{"quantity": *filter.MinQuantity})
	}

	if filter.MaxQuantity != nil {
		q = q.Where(squirrel.LtOrEq{"quantity": *filter.MaxQuantity})
	}

	q = q.OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}

	return balances, nil
}

// GetMovementHistory returns movement history for a product.
func (r *StockRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(stockMovementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.RecordType != nil {
		q = q.Where(squirrel.Eq{"record_type": *filter.RecordType})
	}

	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *filter.Kind})
	}

	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"period": *filter.FromDate})
	}

	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"period": *filter.ToDate})
	}

	q = q.OrderBy("period DESC", "created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	return movements, nil
}

// RecalculateBalances rebuilds the balance table from the ledger.
// Floors at zero like the incremental path, so a rebuild never exposes
// negative stock either.
func (r *StockRepo) RecalculateBalances(ctx context.Context, productID *id.ID) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txm.GetQuerier(ctx)

		cond := ""
		args := []any{}
		if productID != nil {
			cond = "WHERE product_id = $1"
			args = append(args, *productID)
		}

		sql := fmt.Sprintf(`
			INSERT INTO reg_stock_balances (product_id, quantity, last_movement_at, updated_at)
			SELECT product_id,
			       GREATEST(SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END), 0),
			       MAX(period),
			       NOW()
			FROM reg_stock_movements
			%s
			GROUP BY product_id
			ON CONFLICT (product_id) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				last_movement_at = EXCLUDED.last_movement_at,
				updated_at = NOW()
		`, cond)

		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("recalculate balances: %w", err)
		}
		return nil
	})
}

// Ensure interface compliance.
var _ stock.Repository = (*StockRepo)(nil)
