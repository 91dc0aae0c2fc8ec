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
	"caixa/internal/domain/documents/sale"
	"caixa/internal/domain/fiscal"
	"caixa/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "doc_sales"
	saleItemsTable = "doc_sale_items"
)

// saleColumns are the header columns managed through the generic base:
// everything except the fiscal_* group, which UpdateFiscal owns.
var saleColumns = []string{
	"id", "deletion_mark", "version", "attributes",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "date", "company_id", "operator_id", "comment",
	"customer_id", "status",
	"subtotal", "item_discount_total", "order_discount_total",
	"adjustment_amount", "adjustment_kind", "grand_total",
	"payment", "trade_code", "finalized_at",
}

// saleSelectColumns adds the fiscal_* group, aliased so scany maps it
// onto the nested Fiscal struct.
var saleSelectColumns = append(append([]string{}, saleColumns...),
	`fiscal_model AS "fiscal.model"`,
	`fiscal_series AS "fiscal.series"`,
	`fiscal_number AS "fiscal.number"`,
	`fiscal_access_key AS "fiscal.access_key"`,
	`fiscal_protocol AS "fiscal.protocol"`,
	`fiscal_status AS "fiscal.status"`,
	`fiscal_reason AS "fiscal.reason"`,
	`fiscal_issued_at AS "fiscal.issued_at"`,
)

var saleItemColumns = []string{
	"id", "sale_id", "line_key", "product_id", "description",
	"quantity", "unit_price", "discount", "addition", "total",
	"tax", "return_id",
}

// SaleRepo implements sale.Repository.
type SaleRepo struct {
	*BaseDocumentRepo[*sale.Sale]
}

// NewSaleRepo creates a new sale repository.
func NewSaleRepo(txm *postgres.TxManager) *SaleRepo {
	return &SaleRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			salesTable,
			saleColumns,
			func() *sale.Sale { return &sale.Sale{} },
		),
	}
}

// selectSales builds the full header select including fiscal columns.
func (r *SaleRepo) selectSales() squirrel.SelectBuilder {
	return r.Builder().
		Select(saleSelectColumns...).
		From(salesTable)
}

// GetByID retrieves the sale header including fiscal linkage.
func (r *SaleRepo) GetByID(ctx context.Context, saleID id.ID) (*sale.Sale, error) {
	var s sale.Sale
	sql, args, err := r.selectSales().
		Where(squirrel.Eq{"id": saleID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.Querier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", saleID.String())
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return &s, nil
}

// GetItems retrieves the sale's items ordered by insertion.
func (r *SaleRepo) GetItems(ctx context.Context, saleID id.ID) ([]sale.SaleItem, error) {
	sql, args, err := r.Builder().
		Select(saleItemColumns...).
		From(saleItemsTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []sale.SaleItem
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	return items, nil
}

// ReconcileItems diffs incoming items against persisted rows by line_key.
// Matched rows are updated keeping their identity and return back-link,
// new keys are inserted, vanished keys deleted. Runs in one transaction
// so a double finalize never changes the row count.
func (r *SaleRepo) ReconcileItems(ctx context.Context, saleID id.ID, items []sale.SaleItem) error {
	return r.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.GetItems(ctx, saleID)
		if err != nil {
			return err
		}

		existingByKey := make(map[id.ID]sale.SaleItem, len(existing))
		for _, it := range existing {
			existingByKey[it.LineKey] = it
		}

		incoming := make(map[id.ID]struct{}, len(items))
		querier := r.Querier(ctx)

		for i := range items {
			it := &items[i]
			incoming[it.LineKey] = struct{}{}

			if prev, ok := existingByKey[it.LineKey]; ok {
				// Keep identity and any return back-link.
				it.ID = prev.ID
				it.ReturnID = prev.ReturnID
				sql, args, err := r.Builder().
					Update(saleItemsTable).
					Set("product_id", it.ProductID).
					Set("description", it.Description).
					Set("quantity", it.Quantity).
					Set("unit_price", it.UnitPrice).
					Set("discount", it.Discount).
					Set("addition", it.Addition).
					Set("total", it.Total).
					Set("tax", it.Tax).
					Where(squirrel.Eq{"id": prev.ID}).
					ToSql()
				if err != nil {
					return fmt.Errorf("build item update: %w", err)
				}
				if _, err := querier.Exec(ctx, sql, args...); err != nil {
					return fmt.Errorf("update sale item: %w", err)
				}
				continue
			}

			it.SaleID = saleID
			sql, args, err := r.Builder().
				Insert(saleItemsTable).
				Columns(saleItemColumns...).
				Values(
					it.ID, it.SaleID, it.LineKey, it.ProductID, it.Description,
					it.Quantity, it.UnitPrice, it.Discount, it.Addition, it.Total,
					it.Tax, it.ReturnID,
				).
				ToSql()
			if err != nil {
				return fmt.Errorf("build item insert: %w", err)
			}
			if _, err := querier.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}

		for key, prev := range existingByKey {
			if _, ok := incoming[key]; ok {
				continue
			}
			sql, args, err := r.Builder().
				Delete(saleItemsTable).
				Where(squirrel.Eq{"id": prev.ID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build item delete: %w", err)
			}
			if _, err := querier.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("delete sale item: %w", err)
			}
		}

		return nil
	})
}

// UpdateFiscal stores the fiscal linkage without bumping the header
// version; the fiscal sub-state evolves independently of the sale.
func (r *SaleRepo) UpdateFiscal(ctx context.Context, saleID id.ID, info fiscal.DocumentInfo) error {
	sql, args, err := r.Builder().
		Update(salesTable).
		Set("fiscal_model", info.Model).
		Set("fiscal_series", info.Series).
		Set("fiscal_number", info.Number).
		Set("fiscal_access_key", info.AccessKey).
		Set("fiscal_protocol", info.Protocol).
		Set("fiscal_status", info.Status).
		Set("fiscal_reason", info.Reason).
		Set("fiscal_issued_at", info.IssuedAt).
		Where(squirrel.Eq{"id": saleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fiscal update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update sale fiscal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("sale", saleID.String())
	}
	return nil
}

// StampTradeCode back-stamps the sale with a processed return's code.
func (r *SaleRepo) StampTradeCode(ctx context.Context, saleID id.ID, tradeCode string) error {
	sql, args, err := r.Builder().
		Update(salesTable).
		Set("trade_code", tradeCode).
		Where(squirrel.Eq{"id": saleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build stamp update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("stamp trade code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("sale", saleID.String())
	}
	return nil
}

// ListHeld lists in_progress drafts of an operator, newest first.
func (r *SaleRepo) ListHeld(ctx context.Context, operatorID id.ID) ([]sale.Sale, error) {
	sql, args, err := r.selectSales().
		Where(squirrel.Eq{
			"operator_id":   operatorID,
			"status":        sale.StatusInProgress,
			"deletion_mark": false,
		}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sales []sale.Sale
	if err := pgxscan.Select(ctx, r.Querier(ctx), &sales, sql, args...); err != nil {
		return nil, fmt.Errorf("list held sales: %w", err)
	}
	return sales, nil
}

// ListFiscalPending lists finalized sales needing fiscal follow-up.
func (r *SaleRepo) ListFiscalPending(ctx context.Context, companyID id.ID) ([]sale.Sale, error) {
	sql, args, err := r.selectSales().
		Where(squirrel.Eq{
			"company_id": companyID,
			"status":     sale.StatusFinalized,
		}).
		Where(squirrel.Eq{"fiscal_status": []fiscal.Status{
			fiscal.StatusPending, fiscal.StatusRejected,
		}}).
		OrderBy("finalized_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sales []sale.Sale
	if err := pgxscan.Select(ctx, r.Querier(ctx), &sales, sql, args...); err != nil {
		return nil, fmt.Errorf("list fiscal pending: %w", err)
	}
	return sales, nil
}

// List retrieves sales with filtering.
func (r *SaleRepo) List(ctx context.Context, filter sale.ListFilter) ([]sale.Sale, int, error) {
	q := r.selectSales().
		Where(squirrel.Eq{"deletion_mark": false})

	if filter.CompanyID != nil {
		q = q.Where(squirrel.Eq{"company_id": *filter.CompanyID})
	}
	if filter.OperatorID != nil {
		q = q.Where(squirrel.Eq{"operator_id": *filter.OperatorID})
	}
	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
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
		return nil, 0, fmt.Errorf("count sales: %w", err)
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

	var sales []sale.Sale
	if err := pgxscan.Select(ctx, querier, &sales, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	return sales, total, nil
}

// LinkItemsToReturn sets or clears the return back-link on sale items.
func (r *SaleRepo) LinkItemsToReturn(ctx context.Context, saleItemIDs []id.ID, returnID *id.ID) error {
	if len(saleItemIDs) == 0 {
		return nil
	}

	sql, args, err := r.Builder().
		Update(saleItemsTable).
		Set("return_id", returnID).
		Where(squirrel.Eq{"id": saleItemIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build link update: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("link sale items: %w", err)
	}
	return nil
}

// HighestTradeCode returns the highest back-stamped code of the company.
func (r *SaleRepo) HighestTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	sql, args, err := r.Builder().
		Select("trade_code").
		From(salesTable).
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

// TradeCodeExists checks the sale back-references for a code.
func (r *SaleRepo) TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error) {
	sql, args, err := r.Builder().
		Select("1").
		From(salesTable).
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
var _ sale.Repository = (*SaleRepo)(nil)
