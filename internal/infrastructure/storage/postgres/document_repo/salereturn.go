package document_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/documents/salereturn"
	"caixa/internal/domain/fiscal"
	"caixa/internal/infrastructure/storage/postgres"
)

const (
	returnsTable     = "doc_returns"
	returnItemsTable = "doc_return_items"
)

var returnColumns = []string{
	"id", "deletion_mark", "version", "attributes",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "date", "company_id", "operator_id", "comment",
	"trade_code", "customer_id", "origin_sale_id", "origin_sale_number",
	"kind", "refund_method", "reason", "notes",
	"status", "total", "processed_at", "processed_by",
}

var returnSelectColumns = append(append([]string{}, returnColumns...),
	`fiscal_model AS "fiscal.model"`,
	`fiscal_series AS "fiscal.series"`,
	`fiscal_number AS "fiscal.number"`,
	`fiscal_access_key AS "fiscal.access_key"`,
	`fiscal_protocol AS "fiscal.protocol"`,
	`fiscal_status AS "fiscal.status"`,
	`fiscal_reason AS "fiscal.reason"`,
	`fiscal_issued_at AS "fiscal.issued_at"`,
)

var returnItemColumns = []string{
	"id", "return_id", "sale_item_id", "product_id", "description",
	"quantity", "unit_price", "total", "reason", "tax",
}

// ReturnRepo implements salereturn.Repository.
type ReturnRepo struct {
	*BaseDocumentRepo[*salereturn.Return]
}

// NewReturnRepo creates a new return repository.
func NewReturnRepo(txm *postgres.TxManager) *ReturnRepo {
	return &ReturnRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			returnsTable,
			returnColumns,
			func() *salereturn.Return { return &salereturn.Return{} },
		),
	}
}

func (r *ReturnRepo) selectReturns() squirrel.SelectBuilder {
	return r.Builder().
		Select(returnSelectColumns...).
		From(returnsTable)
}

// Delete physically removes a pending return header. This is the
// compensating action when item persistence fails after the header was
// written; processed returns are immutable.
func (r *ReturnRepo) Delete(ctx context.Context, returnID id.ID) error {
	sql, args, err := r.Builder().
		Delete(returnsTable).
		Where(squirrel.Eq{"id": returnID, "status": salereturn.StatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete return: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("return", returnID.String())
	}
	return nil
}

// GetByID retrieves the return header including fiscal linkage.
func (r *ReturnRepo) GetByID(ctx context.Context, returnID id.ID) (*salereturn.Return, error) {
	var ret salereturn.Return
	sql, args, err := r.selectReturns().
		Where(squirrel.Eq{"id": returnID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.Querier(ctx), &ret, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("return", returnID.String())
		}
		return nil, fmt.Errorf("get return: %w", err)
	}
	return &ret, nil
}

// GetItems retrieves the return's items.
func (r *ReturnRepo) GetItems(ctx context.Context, returnID id.ID) ([]salereturn.ReturnItem, error) {
	sql, args, err := r.Builder().
		Select(returnItemColumns...).
		From(returnItemsTable).
		Where(squirrel.Eq{"return_id": returnID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []salereturn.ReturnItem
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select return items: %w", err)
	}
	return items, nil
}

// SaveItems inserts the return's items.
func (r *ReturnRepo) SaveItems(ctx context.Context, returnID id.ID, items []salereturn.ReturnItem) error {
	if len(items) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(returnItemsTable).
		Columns(returnItemColumns...)

	for _, it := range items {
		q = q.Values(
			it.ID, returnID, it.SaleItemID, it.ProductID, it.Description,
			it.Quantity, it.UnitPrice, it.Total, it.Reason, it.Tax,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert return items: %w", err)
	}
	return nil
}

// UpdateFiscal stores the corrective document linkage.
func (r *ReturnRepo) UpdateFiscal(ctx context.Context, returnID id.ID, info fiscal.DocumentInfo) error {
	sql, args, err := r.Builder().
		Update(returnsTable).
		Set("fiscal_model", info.Model).
		Set("fiscal_series", info.Series).
		Set("fiscal_number", info.Number).
		Set("fiscal_access_key", info.AccessKey).
		Set("fiscal_protocol", info.Protocol).
		Set("fiscal_status", info.Status).
		Set("fiscal_reason", info.Reason).
		Set("fiscal_issued_at", info.IssuedAt).
		Where(squirrel.Eq{"id": returnID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fiscal update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update return fiscal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("return", returnID.String())
	}
	return nil
}

// List retrieves returns with filtering.
func (r *ReturnRepo) List(ctx context.Context, filter salereturn.ListFilter) ([]salereturn.Return, int, error) {
	q := r.selectReturns().
		Where(squirrel.Eq{"deletion_mark": false})

	if filter.CompanyID != nil {
		q = q.Where(squirrel.Eq{"company_id": *filter.CompanyID})
	}
	if filter.OriginSaleID != nil {
		q = q.Where(squirrel.Eq{"origin_sale_id": *filter.OriginSaleID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.ToDate})
	}

	countQ := r.Builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.Querier(ctx)
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count returns: %w", err)
	}

	q = q.OrderBy("date DESC")
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

	var returns []salereturn.Return
	if err := pgxscan.Select(ctx, querier, &returns, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list returns: %w", err)
	}
	return returns, total, nil
}

// HighestTradeCode returns the highest code in the return ledger.
func (r *ReturnRepo) HighestTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	sql, args, err := r.Builder().
		Select("trade_code").
		From(returnsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.NotEq{"trade_code": ""}).
		OrderBy("trade_code DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}

	var code string
	err = r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("highest trade code: %w", err)
	}
	return code, nil
}

// TradeCodeExists checks the return ledger for a code.
func (r *ReturnRepo) TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error) {
	sql, args, err := r.Builder().
		Select("1").
		From(returnsTable).
		Where(squirrel.Eq{"company_id": companyID, "trade_code": code}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("trade code exists: %w", err)
	}
	return true, nil
}

// Ensure interface compliance.
var _ salereturn.Repository = (*ReturnRepo)(nil)
