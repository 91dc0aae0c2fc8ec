package salereturn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/documents/sale"
	"caixa/internal/domain/fiscal"
	"caixa/internal/domain/registers/stock"
	"caixa/pkg/numerator"
)

// --- fakes ---

type fakeReturnRepo struct {
	returns map[id.ID]*Return
	items   map[id.ID][]ReturnItem

	saveItemsErr error
	deleted      []id.ID
	takenCodes   map[string]bool
}

func newFakeReturnRepo() *fakeReturnRepo {
	return &fakeReturnRepo{
		returns:    make(map[id.ID]*Return),
		items:      make(map[id.ID][]ReturnItem),
		takenCodes: make(map[string]bool),
	}
}

func (r *fakeReturnRepo) Create(ctx context.Context, ret *Return) error {
	cp := *ret
	r.returns[ret.ID] = &cp
	return nil
}

func (r *fakeReturnRepo) Update(ctx context.Context, ret *Return) error {
	if _, ok := r.returns[ret.ID]; !ok {
		return apperror.NewNotFound("return", ret.ID.String())
	}
	cp := *ret
	r.returns[ret.ID] = &cp
	return nil
}

func (r *fakeReturnRepo) Delete(ctx context.Context, returnID id.ID) error {
	delete(r.returns, returnID)
	delete(r.items, returnID)
	r.deleted = append(r.deleted, returnID)
	return nil
}

func (r *fakeReturnRepo) GetByID(ctx context.Context, returnID id.ID) (*Return, error) {
	ret, ok := r.returns[returnID]
	if !ok {
		return nil, apperror.NewNotFound("return", returnID.String())
	}
	cp := *ret
	return &cp, nil
}

func (r *fakeReturnRepo) GetItems(ctx context.Context, returnID id.ID) ([]ReturnItem, error) {
	return r.items[returnID], nil
}

func (r *fakeReturnRepo) SaveItems(ctx context.Context, returnID id.ID, items []ReturnItem) error {
	if r.saveItemsErr != nil {
		return r.saveItemsErr
	}
	r.items[returnID] = items
	return nil
}

func (r *fakeReturnRepo) UpdateFiscal(ctx context.Context, returnID id.ID, info fiscal.DocumentInfo) error {
	ret, ok := r.returns[returnID]
	if !ok {
		return apperror.NewNotFound("return", returnID.String())
	}
	ret.Fiscal = info
	return nil
}

func (r *fakeReturnRepo) List(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	var out []Return
	for _, ret := range r.returns {
		out = append(out, *ret)
	}
	return out, len(out), nil
}

func (r *fakeReturnRepo) HighestTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	best := ""
	for _, ret := range r.returns {
		if parseTradeCode(ret.TradeCode) > parseTradeCode(best) {
			best = ret.TradeCode
		}
	}
	return best, nil
}

func (r *fakeReturnRepo) TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error) {
	if r.takenCodes[code] {
		return true, nil
	}
	for _, ret := range r.returns {
		if ret.TradeCode == code {
			return true, nil
		}
	}
	return false, nil
}

type fakeSaleStore struct {
	sales map[id.ID]*sale.Sale
	items map[id.ID][]sale.SaleItem

	stamped    map[id.ID]string
	takenCodes map[string]bool
	stampErr   error
}

func newFakeSaleStore() *fakeSaleStore {
	return &fakeSaleStore{
		sales:      make(map[id.ID]*sale.Sale),
		items:      make(map[id.ID][]sale.SaleItem),
		stamped:    make(map[id.ID]string),
		takenCodes: make(map[string]bool),
	}
}

func (f *fakeSaleStore) GetByID(ctx context.Context, saleID id.ID) (*sale.Sale, error) {
	s, ok := f.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID.String())
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSaleStore) GetItems(ctx context.Context, saleID id.ID) ([]sale.SaleItem, error) {
	return f.items[saleID], nil
}

func (f *fakeSaleStore) LinkItemsToReturn(ctx context.Context, saleItemIDs []id.ID, returnID *id.ID) error {
	for saleID, items := range f.items {
		for i := range items {
			for _, target := range saleItemIDs {
				if items[i].ID == target {
					items[i].ReturnID = returnID
				}
			}
		}
		f.items[saleID] = items
	}
	return nil
}

func (f *fakeSaleStore) StampTradeCode(ctx context.Context, saleID id.ID, tradeCode string) error {
	if f.stampErr != nil {
		return f.stampErr
	}
	f.stamped[saleID] = tradeCode
	if s, ok := f.sales[saleID]; ok {
		s.TradeCode = tradeCode
	}
	return nil
}

func (f *fakeSaleStore) HighestTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	best := ""
	for _, code := range f.stamped {
		if parseTradeCode(code) > parseTradeCode(best) {
			best = code
		}
	}
	return best, nil
}

func (f *fakeSaleStore) TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error) {
	if f.takenCodes[code] {
		return true, nil
	}
	for _, c := range f.stamped {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

type fakeStockCreditor struct {
	calls int
	lines []stock.ReturnLine
}

func (f *fakeStockCreditor) ApplyReturn(ctx context.Context, returnID id.ID, period time.Time, lines []stock.ReturnLine) []stock.Warning {
	f.calls++
	f.lines = lines
	return nil
}

type fakeCompanies struct{ co *company.Company }

func (f *fakeCompanies) GetByID(ctx context.Context, companyID id.ID) (*company.Company, error) {
	return f.co, nil
}

type fakeProductCatalog struct{ byID map[id.ID]*product.Product }

func (f *fakeProductCatalog) GetMany(ctx context.Context, ids []id.ID) ([]*product.Product, error) {
	var out []*product.Product
	for _, pid := range ids {
		if p, ok := f.byID[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeEmitter struct {
	result  *fiscal.Result
	err     error
	calls   int
	lastDoc *fiscal.Document
}

func (f *fakeEmitter) Emit(ctx context.Context, doc *fiscal.Document) (*fiscal.Result, error) {
	f.calls++
	f.lastDoc = doc
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReservoir struct {
	next  int64
	calls int
}

func (f *fakeReservoir) Reserve(ctx context.Context, companyID id.ID, series int, model int) (int64, error) {
	f.calls++
	f.next++
	return f.next, nil
}

type memSeqRow struct{ val int64 }

func (r memSeqRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.val
	return nil
}

type memSequences struct {
	mu   sync.Mutex
	vals map[string]int64
}

func (q *memSequences) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.vals == nil {
		q.vals = make(map[string]int64)
	}
	key := args[0].(string)
	inc := int64(1)
	if len(args) == 2 {
		inc = args[1].(int64)
	}
	q.vals[key] += inc
	return memSeqRow{val: q.vals[key]}
}

// --- fixture ---

type fixture struct {
	svc      *Service
	repo     *fakeReturnRepo
	sales    *fakeSaleStore
	stock    *fakeStockCreditor
	emitter  *fakeEmitter
	co       *company.Company
	productA *product.Product
	ctx      context.Context

	companyID  id.ID
	operatorID id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	co := company.NewCompany("C1", "Padaria Central LTDA", "12345678000190")
	co.FiscalEnabled = true

	productA := product.NewProduct("P-A", "Product A", product.KindGoods)
	productA.TracksStock = true

	repo := newFakeReturnRepo()
	sales := newFakeSaleStore()
	stockCreditor := &fakeStockCreditor{}
	emitter := &fakeEmitter{result: &fiscal.Result{Authorized: true, AccessKey: "NFe555", Protocol: "777"}}

	svc := NewService(
		repo,
		sales,
		stockCreditor,
		&fakeCompanies{co: co},
		&fakeProductCatalog{byID: map[id.ID]*product.Product{productA.ID: productA}},
		emitter,
		&fakeReservoir{},
		numerator.New(&memSequences{}),
	)

	operatorID := id.New()
	ctx := appctx.WithOperator(context.Background(), &appctx.OperatorContext{
		OperatorID:    operatorID.String(),
		CompanyID:     co.ID.String(),
		ReceiptSeries: 3,
	})

	return &fixture{
		svc:        svc,
		repo:       repo,
		sales:      sales,
		stock:      stockCreditor,
		emitter:    emitter,
		co:         co,
		productA:   productA,
		ctx:        ctx,
		companyID:  co.ID,
		operatorID: operatorID,
	}
}

// seedSale persists a finalized origin sale with one item of productA.
func (f *fixture) seedSale(t *testing.T, qty int64, fiscalStatus fiscal.Status) *sale.Sale {
	t.Helper()
	s := sale.NewSale(f.companyID, f.operatorID)
	s.Number = "SL-2026-00001"
	s.GrandTotal = types.NewMoney(float64(qty) * 10)
	s.MarkFinalized()
	s.Fiscal.Status = fiscalStatus
	if fiscalStatus == fiscal.StatusAuthorized {
		s.Fiscal.Model = fiscal.ModelNFCe
		s.Fiscal.Series = 3
		s.Fiscal.Number = 42
		s.Fiscal.AccessKey = "NFe-ORIGIN-KEY"
	}

	item := sale.SaleItem{
		ID:          id.New(),
		SaleID:      s.ID,
		LineKey:     id.New(),
		ProductID:   &f.productA.ID,
		Description: "Product A",
		Quantity:    types.NewQuantityFromInt(qty),
		UnitPrice:   types.NewMoney(10),
		Total:       types.NewMoney(float64(qty) * 10),
	}

	f.sales.sales[s.ID] = s
	f.sales.items[s.ID] = []sale.SaleItem{item}
	return s
}

// --- tests ---

func TestCreateAndProcess_ManualReturn(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 2, fiscal.StatusNotApplicable)
	originItem := f.sales.items[origin.ID][0]

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		Items: []CreateItem{{
			SaleItemID: originItem.ID,
			Quantity:   types.NewQuantityFromInt(1),
			Reason:     "defective",
		}},
		RefundMethod: RefundCash,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, ret.Status)
	assert.Equal(t, KindPartial, ret.Kind)
	assert.Equal(t, "TRC-000001", ret.TradeCode)
	assert.True(t, ret.Total.Equal(types.NewMoney(10)))
	assert.Equal(t, fiscal.StatusNotApplicable, ret.Fiscal.Status, "manual path emits nothing")
	assert.Equal(t, 0, f.emitter.calls)

	// Item is claimed immediately.
	require.NotNil(t, f.sales.items[origin.ID][0].ReturnID)
	assert.Equal(t, ret.ID, *f.sales.items[origin.ID][0].ReturnID)

	processed, warnings, err := f.svc.Process(f.ctx, ret.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, StatusProcessed, processed.Status)
	assert.NotNil(t, processed.ProcessedAt)

	require.Equal(t, 1, f.stock.calls)
	require.Len(t, f.stock.lines, 1)
	assert.Equal(t, f.productA.ID, f.stock.lines[0].ProductID)
	assert.Equal(t, types.NewQuantityFromInt(1), f.stock.lines[0].Quantity)

	assert.Equal(t, "TRC-000001", f.sales.stamped[origin.ID])
}

func TestCreate_ExclusivityBeforePersistence(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 2, fiscal.StatusNotApplicable)

	claimed := id.New()
	items := f.sales.items[origin.ID]
	items[0].ReturnID = &claimed
	f.sales.items[origin.ID] = items

	_, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReturnItemConflict))
	assert.Empty(t, f.repo.returns, "nothing was persisted")
}

func TestCreate_ConfirmationPhraseGate(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusAuthorized)
	originItem := f.sales.items[origin.ID][0]

	req := CreateRequest{
		OriginSaleID: origin.ID,
		Items: []CreateItem{{
			SaleItemID: originItem.ID,
			Quantity:   types.NewQuantityFromInt(1),
		}},
		RefundMethod: RefundCash,
	}

	_, err := f.svc.Create(f.ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Empty(t, f.repo.returns)

	req.Confirmation = ConfirmationPhrase
	ret, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusNotApplicable, ret.Fiscal.Status)
}

func TestCreate_NoPhraseNeededWithoutOriginReceipt(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusNotApplicable)

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.NoError(t, err)
	assert.Equal(t, KindTotal, ret.Kind)
}

func TestCreate_CorrectiveReferencesOrigin(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 2, fiscal.StatusAuthorized)

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
		Fiscal:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, fiscal.StatusAuthorized, ret.Fiscal.Status)
	assert.Equal(t, "NFe555", ret.Fiscal.AccessKey)
	assert.Equal(t, fiscal.ModelNFe, ret.Fiscal.Model)

	require.Equal(t, 1, f.emitter.calls)
	assert.Equal(t, fiscal.FinalityReturn, f.emitter.lastDoc.Finality)
	assert.Equal(t, "NFe-ORIGIN-KEY", f.emitter.lastDoc.RefAccessKey)
}

func TestCreate_CorrectiveRequiresAuthorizedOrigin(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusNotApplicable)

	_, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
		Fiscal:       true,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestCreate_CorrectiveTransportParksPending(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusAuthorized)
	f.emitter.err = apperror.NewFiscalTransport("connection refused", errors.New("dial tcp"))

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
		Fiscal:       true,
	})
	require.NoError(t, err, "transport failure never fails creation")
	assert.Equal(t, fiscal.StatusPending, ret.Fiscal.Status)
	assert.True(t, ret.Fiscal.HasReservedNumber())
}

func TestCreate_CompensatingDeleteOnItemFailure(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusNotApplicable)
	f.repo.saveItemsErr = errors.New("disk full")

	_, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.Error(t, err)

	assert.Empty(t, f.repo.returns, "header was compensated away")
	require.Len(t, f.repo.deleted, 1)
	assert.Nil(t, f.sales.items[origin.ID][0].ReturnID, "no dangling claim")
}

func TestCancel_ReleasesItemClaims(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusNotApplicable)

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.NoError(t, err)
	require.NotNil(t, f.sales.items[origin.ID][0].ReturnID)

	canceled, err := f.svc.Cancel(f.ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Nil(t, f.sales.items[origin.ID][0].ReturnID)

	// Items are claimable again.
	_, err = f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.NoError(t, err)
}

func TestProcess_OnlyPending(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 1, fiscal.StatusNotApplicable)

	ret, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		WholeSale:    true,
		RefundMethod: RefundCash,
	})
	require.NoError(t, err)

	_, _, err = f.svc.Process(f.ctx, ret.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Process(f.ctx, ret.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Equal(t, 1, f.stock.calls)
}

func TestNextTradeCode_SequentialAcrossBothSources(t *testing.T) {
	f := newFixture(t)

	code, err := f.svc.NextTradeCode(f.ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, "TRC-000001", code)

	// Sale-side back-reference is ahead of the return ledger.
	f.sales.stamped[id.New()] = "TRC-000007"

	code, err = f.svc.NextTradeCode(f.ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, "TRC-000008", code)
}

func TestNextTradeCode_CollisionRetry(t *testing.T) {
	f := newFixture(t)

	// The proposed codes 1..3 are taken without raising the ledger max.
	f.repo.takenCodes["TRC-000001"] = true
	f.repo.takenCodes["TRC-000002"] = true
	f.sales.takenCodes["TRC-000003"] = true

	code, err := f.svc.NextTradeCode(f.ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, "TRC-000004", code)
}

func TestNextTradeCode_Exhaustion(t *testing.T) {
	f := newFixture(t)
	for n := int64(1); n <= 20; n++ {
		f.repo.takenCodes[formatTradeCode(n)] = true
	}

	_, err := f.svc.NextTradeCode(f.ctx, f.companyID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeTradeCodeExhausted))
}

func TestCreate_QuantityBounds(t *testing.T) {
	f := newFixture(t)
	origin := f.seedSale(t, 2, fiscal.StatusNotApplicable)
	originItem := f.sales.items[origin.ID][0]

	_, err := f.svc.Create(f.ctx, CreateRequest{
		OriginSaleID: origin.ID,
		Items: []CreateItem{{
			SaleItemID: originItem.ID,
			Quantity:   types.NewQuantityFromInt(3),
		}},
		RefundMethod: RefundCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
