package salereturn

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/documents/sale"
	"caixa/internal/domain/fiscal"
	"caixa/internal/domain/registers/stock"
	"caixa/pkg/logger"
	"caixa/pkg/numerator"
)

const (
	tradeCodePrefix       = "TRC-"
	maxTradeCodeAttempts  = 10
	returnOperationNature = "DEVOLUCAO DE MERCADORIA"
)

// SaleStore is the slice of the sale repository the return flow needs.
// Trade codes live in two places, the return ledger and the sale
// back-references, so both sides participate in generation.
type SaleStore interface {
	GetByID(ctx context.Context, saleID id.ID) (*sale.Sale, error)
	GetItems(ctx context.Context, saleID id.ID) ([]sale.SaleItem, error)
	LinkItemsToReturn(ctx context.Context, saleItemIDs []id.ID, returnID *id.ID) error
	StampTradeCode(ctx context.Context, saleID id.ID, tradeCode string) error
	HighestTradeCode(ctx context.Context, companyID id.ID) (string, error)
	TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error)
}

// StockCreditor is the slice of the stock service the return flow needs.
type StockCreditor interface {
	ApplyReturn(ctx context.Context, returnID id.ID, period time.Time, lines []stock.ReturnLine) []stock.Warning
}

// CompanyLookup resolves the issuing company for corrective documents.
type CompanyLookup interface {
	GetByID(ctx context.Context, companyID id.ID) (*company.Company, error)
}

// CreateItem selects a portion of an origin sale item.
type CreateItem struct {
	SaleItemID id.ID          `json:"saleItemId"`
	Quantity   types.Quantity `json:"quantity"`
	Reason     string         `json:"reason,omitempty"`
}

// CreateRequest creates a pending return.
type CreateRequest struct {
	OriginSaleID id.ID `json:"originSaleId"`

	// WholeSale selects every origin item in full; Items is ignored.
	WholeSale bool         `json:"wholeSale"`
	Items     []CreateItem `json:"items,omitempty"`

	RefundMethod RefundMethod `json:"refundMethod"`
	Reason       string       `json:"reason,omitempty"`
	Notes        string       `json:"notes,omitempty"`

	// Fiscal requests a corrective document referencing the origin
	// receipt. Requires the origin to carry an authorized document.
	Fiscal bool `json:"fiscal"`

	// Confirmation must equal ConfirmationPhrase for a manual return
	// against an origin with an authorized receipt.
	Confirmation string `json:"confirmation,omitempty"`
}

// Service orchestrates returns and exchanges.
type Service struct {
	repo      Repository
	sales     SaleStore
	stock     StockCreditor
	companies CompanyLookup
	products  sale.ProductCatalog
	emitter   fiscal.Emitter
	reservoir sale.NumberReservoir
	numerator *numerator.Service
}

// NewService creates a return service.
func NewService(
	repo Repository,
	sales SaleStore,
	stockSvc StockCreditor,
	companies CompanyLookup,
	products sale.ProductCatalog,
	emitter fiscal.Emitter,
	reservoir sale.NumberReservoir,
	num *numerator.Service,
) *Service {
	return &Service{
		repo:      repo,
		sales:     sales,
		stock:     stockSvc,
		companies: companies,
		products:  products,
		emitter:   emitter,
		reservoir: reservoir,
		numerator: num,
	}
}

// NextTradeCode proposes the next sequential code for the company,
// verified against both the return ledger and the sale back-references.
func (s *Service) NextTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	fromReturns, err := s.repo.HighestTradeCode(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("scan return ledger: %w", err)
	}
	fromSales, err := s.sales.HighestTradeCode(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("scan sale back-references: %w", err)
	}

	next := parseTradeCode(fromReturns)
	if n := parseTradeCode(fromSales); n > next {
		next = n
	}

	for attempt := 0; attempt < maxTradeCodeAttempts; attempt++ {
		next++
		code := formatTradeCode(next)

		inReturns, err := s.repo.TradeCodeExists(ctx, companyID, code)
		if err != nil {
			return "", fmt.Errorf("verify trade code: %w", err)
		}
		inSales, err := s.sales.TradeCodeExists(ctx, companyID, code)
		if err != nil {
			return "", fmt.Errorf("verify trade code: %w", err)
		}
		if !inReturns && !inSales {
			return code, nil
		}
	}

	return "", apperror.NewTradeCodeExhausted(maxTradeCodeAttempts)
}

// Create validates the request against the origin sale and persists a
// pending return. The exclusivity check runs before anything is
// written: an item already claimed by a pending or processed return
// fails the whole request.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Return, error) {
	op, operatorID, companyID, err := s.requireOperator(ctx)
	if err != nil {
		return nil, err
	}

	origin, err := s.sales.GetByID(ctx, req.OriginSaleID)
	if err != nil {
		return nil, err
	}
	if !origin.IsFinalized() {
		return nil, apperror.NewValidation("only finalized sales can be returned").
			WithDetail("saleId", origin.ID.String())
	}

	originItems, err := s.sales.GetItems(ctx, req.OriginSaleID)
	if err != nil {
		return nil, err
	}

	selected, kind, err := selectItems(req, originItems)
	if err != nil {
		return nil, err
	}

	originAuthorized := origin.Fiscal.Status == fiscal.StatusAuthorized
	if req.Fiscal && !originAuthorized {
		return nil, apperror.NewValidation("corrective document requires an authorized origin receipt").
			WithDetail("fiscalStatus", string(origin.Fiscal.Status))
	}
	if !req.Fiscal && originAuthorized && req.Confirmation != ConfirmationPhrase {
		return nil, apperror.NewValidation("manual return against a fiscal sale requires the confirmation phrase").
			WithDetail("field", "confirmation")
	}

	tradeCode, err := s.NextTradeCode(ctx, companyID)
	if err != nil {
		return nil, err
	}

	ret := NewReturn(companyID, operatorID, origin.ID)
	ret.OriginSaleNumber = origin.Number
	ret.CustomerID = origin.CustomerID
	ret.TradeCode = tradeCode
	ret.Kind = kind
	ret.RefundMethod = req.RefundMethod
	ret.Reason = req.Reason
	ret.Notes = req.Notes
	ret.Items = selected
	for _, it := range selected {
		ret.Total = ret.Total.Add(it.Total)
	}

	if err := s.assignNumber(ctx, ret); err != nil {
		return nil, err
	}
	if err := ret.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, ret); err != nil {
		return nil, fmt.Errorf("create return: %w", err)
	}
	if err := s.repo.SaveItems(ctx, ret.ID, ret.Items); err != nil {
		// Compensate: no transaction spans header and items, so the
		// orphaned header is removed explicitly.
		if delErr := s.repo.Delete(ctx, ret.ID); delErr != nil {
			logger.Error(ctx, "compensating delete failed",
				"return_id", ret.ID, "error", delErr)
		}
		return nil, fmt.Errorf("save return items: %w", err)
	}

	saleItemIDs := make([]id.ID, 0, len(ret.Items))
	for _, it := range ret.Items {
		saleItemIDs = append(saleItemIDs, it.SaleItemID)
	}
	if err := s.sales.LinkItemsToReturn(ctx, saleItemIDs, &ret.ID); err != nil {
		if delErr := s.repo.Delete(ctx, ret.ID); delErr != nil {
			logger.Error(ctx, "compensating delete failed",
				"return_id", ret.ID, "error", delErr)
		}
		return nil, fmt.Errorf("link sale items: %w", err)
	}

	if req.Fiscal {
		s.emitCorrective(ctx, ret, origin, op.ReceiptSeries)
	}

	logger.Info(ctx, "return created",
		"return_id", ret.ID,
		"trade_code", ret.TradeCode,
		"origin_sale_id", origin.ID,
		"kind", ret.Kind)

	return ret, nil
}

// Process credits stock, back-stamps the origin sale and closes the
// return. Stock failures are warnings; the back-stamp must succeed.
func (s *Service) Process(ctx context.Context, returnID id.ID) (*Return, []stock.Warning, error) {
	_, operatorID, _, err := s.requireOperator(ctx)
	if err != nil {
		return nil, nil, err
	}

	ret, err := s.Get(ctx, returnID)
	if err != nil {
		return nil, nil, err
	}
	if ret.Status != StatusPending {
		return nil, nil, apperror.NewValidation("only pending returns can be processed").
			WithDetail("status", string(ret.Status))
	}

	var lines []stock.ReturnLine
	for _, it := range ret.Items {
		if it.ProductID == nil {
			continue
		}
		lines = append(lines, stock.ReturnLine{
			ReturnItemID: it.ID,
			ProductID:    *it.ProductID,
			Quantity:     it.Quantity,
		})
	}
	warnings := s.stock.ApplyReturn(ctx, ret.ID, ret.Date, lines)

	if err := s.sales.StampTradeCode(ctx, ret.OriginSaleID, ret.TradeCode); err != nil {
		// Stock application is idempotent by recorder, so a retry of
		// Process after this failure will not double-credit.
		return nil, warnings, fmt.Errorf("stamp origin sale: %w", err)
	}

	ret.MarkProcessed(operatorID)
	if err := s.repo.Update(ctx, ret); err != nil {
		return nil, warnings, err
	}

	logger.Info(ctx, "return processed",
		"return_id", ret.ID,
		"trade_code", ret.TradeCode,
		"warnings", len(warnings))

	return ret, warnings, nil
}

// Cancel abandons a pending return and releases its item claims.
// Processed returns are immutable.
func (s *Service) Cancel(ctx context.Context, returnID id.ID) (*Return, error) {
	if _, _, _, err := s.requireOperator(ctx); err != nil {
		return nil, err
	}

	ret, err := s.Get(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if ret.Status != StatusPending {
		return nil, apperror.NewValidation("only pending returns can be canceled").
			WithDetail("status", string(ret.Status))
	}

	saleItemIDs := make([]id.ID, 0, len(ret.Items))
	for _, it := range ret.Items {
		saleItemIDs = append(saleItemIDs, it.SaleItemID)
	}
	if err := s.sales.LinkItemsToReturn(ctx, saleItemIDs, nil); err != nil {
		return nil, fmt.Errorf("release sale items: %w", err)
	}

	ret.Status = StatusCanceled
	ret.Touch()
	if err := s.repo.Update(ctx, ret); err != nil {
		return nil, err
	}

	logger.Info(ctx, "return canceled", "return_id", ret.ID, "trade_code", ret.TradeCode)
	return ret, nil
}

// Get retrieves a return with items.
func (s *Service) Get(ctx context.Context, returnID id.ID) (*Return, error) {
	ret, err := s.repo.GetByID(ctx, returnID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	ret.Items = items
	return ret, nil
}

// List retrieves returns with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	return s.repo.List(ctx, filter)
}

// emitCorrective reserves a number and drives the corrective emission.
// Outcomes map like sale emission: transport failure parks the document
// as pending without failing return creation.
func (s *Service) emitCorrective(ctx context.Context, ret *Return, origin *sale.Sale, series int) {
	if series <= 0 {
		ret.Fiscal.Status = fiscal.StatusPending
		ret.Fiscal.Reason = "operator has no fiscal series configured"
		s.storeFiscal(ctx, ret)
		return
	}

	number, err := s.reservoir.Reserve(ctx, ret.CompanyID, series, int(fiscal.ModelNFe))
	if err != nil {
		ret.Fiscal.Status = fiscal.StatusPending
		ret.Fiscal.Reason = err.Error()
		s.storeFiscal(ctx, ret)
		return
	}

	ret.Fiscal.Model = fiscal.ModelNFe
	ret.Fiscal.Series = series
	ret.Fiscal.Number = number
	ret.Fiscal.Status = fiscal.StatusProcessing
	s.storeFiscal(ctx, ret)

	doc, err := s.buildCorrective(ctx, ret, origin)
	if err != nil {
		ret.Fiscal.Status = fiscal.StatusPending
		ret.Fiscal.Reason = err.Error()
		s.storeFiscal(ctx, ret)
		return
	}

	result, emitErr := s.emitter.Emit(context.WithoutCancel(ctx), doc)
	sale.ApplyEmissionOutcome(&ret.Fiscal, result, emitErr)
	s.storeFiscal(ctx, ret)
}

// buildCorrective assembles the return's corrective document, model 55
// with return finality, referencing the origin access key.
func (s *Service) buildCorrective(ctx context.Context, ret *Return, origin *sale.Sale) (*fiscal.Document, error) {
	co, err := s.companies.GetByID(ctx, ret.CompanyID)
	if err != nil {
		return nil, err
	}

	var productIDs []id.ID
	for _, it := range ret.Items {
		if it.ProductID != nil {
			productIDs = append(productIDs, *it.ProductID)
		}
	}
	byID := make(map[id.ID]*product.Product, len(productIDs))
	if len(productIDs) > 0 {
		list, err := s.products.GetMany(ctx, productIDs)
		if err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
		for _, p := range list {
			byID[p.ID] = p
		}
	}

	items := make([]fiscal.Item, 0, len(ret.Items))
	for _, it := range ret.Items {
		code := "DIVERSOS"
		barcode := ""
		if it.ProductID != nil {
			p, ok := byID[*it.ProductID]
			if !ok {
				return nil, apperror.NewNotFound("product", it.ProductID.String())
			}
			code = p.Code
			if p.Barcode != nil {
				barcode = *p.Barcode
			}
		}
		items = append(items, fiscal.Item{
			Code:        code,
			Barcode:     barcode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			Tax:         it.Tax,
		})
	}

	doc := &fiscal.Document{
		Model:           ret.Fiscal.Model,
		Series:          ret.Fiscal.Series,
		Number:          ret.Fiscal.Number,
		IssuedAt:        time.Now(),
		Environment:     string(co.Environment),
		OperationNature: returnOperationNature,
		Finality:        fiscal.FinalityReturn,
		Issuer:          co.Issuer(),
		Items:           items,
		Total:           ret.Total,
		Payments: []fiscal.PaymentEntry{{
			Code:   fiscal.AuthorityPaymentCode(string(ret.RefundMethod)),
			Amount: ret.Total,
		}},
		RefAccessKey: origin.Fiscal.AccessKey,
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) storeFiscal(ctx context.Context, ret *Return) {
	if err := s.repo.UpdateFiscal(ctx, ret.ID, ret.Fiscal); err != nil {
		logger.Error(ctx, "store fiscal state failed",
			"return_id", ret.ID, "error", err)
	}
}

func (s *Service) assignNumber(ctx context.Context, ret *Return) error {
	number, err := s.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("RET"), numerator.DefaultOptions(), time.Now())
	if err != nil {
		return fmt.Errorf("generate return number: %w", err)
	}
	ret.Number = number
	return nil
}

func (s *Service) requireOperator(ctx context.Context) (*appctx.OperatorContext, id.ID, id.ID, error) {
	op := appctx.GetOperator(ctx)
	if op == nil {
		return nil, id.Nil(), id.Nil(), apperror.NewUnauthorized("operator session required")
	}
	operatorID, err := id.Parse(op.OperatorID)
	if err != nil {
		return nil, id.Nil(), id.Nil(), apperror.NewUnauthorized("invalid session operator")
	}
	companyID, err := id.Parse(op.CompanyID)
	if err != nil {
		return nil, id.Nil(), id.Nil(), apperror.NewUnauthorized("invalid session company")
	}
	return op, operatorID, companyID, nil
}

// selectItems resolves the requested selection against the origin
// items, enforcing quantity bounds and return exclusivity.
func selectItems(req CreateRequest, originItems []sale.SaleItem) ([]ReturnItem, Kind, error) {
	byID := make(map[id.ID]sale.SaleItem, len(originItems))
	for _, it := range originItems {
		byID[it.ID] = it
	}

	if req.WholeSale {
		items := make([]ReturnItem, 0, len(originItems))
		for _, origin := range originItems {
			if origin.ReturnID != nil {
				return nil, "", apperror.NewReturnItemConflict(origin.ID.String())
			}
			items = append(items, newReturnItem(origin, origin.Quantity, req.Reason))
		}
		if len(items) == 0 {
			return nil, "", apperror.NewValidation("origin sale has no items")
		}
		return items, KindTotal, nil
	}

	if len(req.Items) == 0 {
		return nil, "", apperror.NewValidation("return has no items").
			WithDetail("field", "items")
	}

	items := make([]ReturnItem, 0, len(req.Items))
	full := true
	for _, sel := range req.Items {
		origin, ok := byID[sel.SaleItemID]
		if !ok {
			return nil, "", apperror.NewNotFound("sale item", sel.SaleItemID.String())
		}
		if origin.ReturnID != nil {
			return nil, "", apperror.NewReturnItemConflict(origin.ID.String())
		}
		if !sel.Quantity.IsPositive() {
			return nil, "", apperror.NewValidation("return quantity must be positive").
				WithDetail("saleItemId", sel.SaleItemID.String())
		}
		if sel.Quantity > origin.Quantity {
			return nil, "", apperror.NewValidation("return quantity exceeds sold quantity").
				WithDetail("saleItemId", sel.SaleItemID.String())
		}
		if sel.Quantity < origin.Quantity {
			full = false
		}
		items = append(items, newReturnItem(origin, sel.Quantity, sel.Reason))
	}

	kind := KindPartial
	if full && len(items) == len(originItems) {
		kind = KindTotal
	}
	return items, kind, nil
}

func newReturnItem(origin sale.SaleItem, qty types.Quantity, reason string) ReturnItem {
	return ReturnItem{
		ID:          id.New(),
		SaleItemID:  origin.ID,
		ProductID:   origin.ProductID,
		Description: origin.Description,
		Quantity:    qty,
		UnitPrice:   origin.UnitPrice,
		Total:       qty.Decimal().Mul(origin.UnitPrice),
		Reason:      reason,
		Tax:         origin.Tax,
	}
}

func formatTradeCode(n int64) string {
	return fmt.Sprintf("%s%06d", tradeCodePrefix, n)
}

// parseTradeCode extracts the sequential part of a trade code, zero for
// empty or foreign formats.
func parseTradeCode(code string) int64 {
	if code == "" || !strings.HasPrefix(code, tradeCodePrefix) {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(code, tradeCodePrefix), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
