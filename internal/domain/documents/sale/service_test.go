package sale

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
	"caixa/internal/domain/cart"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/customer"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/fiscal"
	"caixa/internal/domain/registers/stock"
	"caixa/pkg/numerator"
)

// --- fakes ---

type fakeSaleRepo struct {
	sales map[id.ID]*Sale
	items map[id.ID][]SaleItem

	fiscalUpdates int
	createErr     error
	reconcileErr  error
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{
		sales: make(map[id.ID]*Sale),
		items: make(map[id.ID][]SaleItem),
	}
}

func (r *fakeSaleRepo) Create(ctx context.Context, s *Sale) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.sales[s.ID]; ok {
		return apperror.NewConflict("sale already exists")
	}
	cp := *s
	r.sales[s.ID] = &cp
	return nil
}

func (r *fakeSaleRepo) Update(ctx context.Context, s *Sale) error {
	if _, ok := r.sales[s.ID]; !ok {
		return apperror.NewNotFound("sale", s.ID.String())
	}
	cp := *s
	r.sales[s.ID] = &cp
	return nil
}

func (r *fakeSaleRepo) GetByID(ctx context.Context, saleID id.ID) (*Sale, error) {
	s, ok := r.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID.String())
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSaleRepo) GetItems(ctx context.Context, saleID id.ID) ([]SaleItem, error) {
	return r.items[saleID], nil
}

func (r *fakeSaleRepo) ReconcileItems(ctx context.Context, saleID id.ID, items []SaleItem) error {
	if r.reconcileErr != nil {
		return r.reconcileErr
	}
	existing := make(map[id.ID]SaleItem)
	for _, it := range r.items[saleID] {
		existing[it.LineKey] = it
	}
	merged := make([]SaleItem, 0, len(items))
	for _, it := range items {
		it.SaleID = saleID
		if prev, ok := existing[it.LineKey]; ok {
			it.ID = prev.ID
			it.ReturnID = prev.ReturnID
		}
		merged = append(merged, it)
	}
	r.items[saleID] = merged
	return nil
}

func (r *fakeSaleRepo) UpdateFiscal(ctx context.Context, saleID id.ID, info fiscal.DocumentInfo) error {
	s, ok := r.sales[saleID]
	if !ok {
		return apperror.NewNotFound("sale", saleID.String())
	}
	s.Fiscal = info
	r.fiscalUpdates++
	return nil
}

func (r *fakeSaleRepo) StampTradeCode(ctx context.Context, saleID id.ID, tradeCode string) error {
	s, ok := r.sales[saleID]
	if !ok {
		return apperror.NewNotFound("sale", saleID.String())
	}
	s.TradeCode = tradeCode
	return nil
}

func (r *fakeSaleRepo) ListHeld(ctx context.Context, operatorID id.ID) ([]Sale, error) {
	var out []Sale
	for _, s := range r.sales {
		if s.Status == StatusInProgress && s.OperatorID == operatorID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) ListFiscalPending(ctx context.Context, companyID id.ID) ([]Sale, error) {
	var out []Sale
	for _, s := range r.sales {
		if s.Status == StatusFinalized && s.Fiscal.Status.NeedsAttention() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var out []Sale
	for _, s := range r.sales {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r *fakeSaleRepo) LinkItemsToReturn(ctx context.Context, saleItemIDs []id.ID, returnID *id.ID) error {
	for saleID, items := range r.items {
		for i := range items {
			for _, target := range saleItemIDs {
				if items[i].ID == target {
					items[i].ReturnID = returnID
				}
			}
		}
		r.items[saleID] = items
	}
	return nil
}

func (r *fakeSaleRepo) HighestTradeCode(ctx context.Context, companyID id.ID) (string, error) {
	return "", nil
}

func (r *fakeSaleRepo) TradeCodeExists(ctx context.Context, companyID id.ID, code string) (bool, error) {
	for _, s := range r.sales {
		if s.TradeCode == code {
			return true, nil
		}
	}
	return false, nil
}

type fakeReservoir struct {
	mu    sync.Mutex
	next  int64
	calls int
	err   error
}

func (f *fakeReservoir) Reserve(ctx context.Context, companyID id.ID, series int, model int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
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

type fakeStockApplier struct {
	calls    int
	lines    []stock.SaleLine
	warnings []stock.Warning
}

func (f *fakeStockApplier) ApplySale(ctx context.Context, saleID id.ID, period time.Time, lines []stock.SaleLine) []stock.Warning {
	f.calls++
	f.lines = lines
	return f.warnings
}

type fakeCompanies struct{ co *company.Company }

func (f *fakeCompanies) GetByID(ctx context.Context, companyID id.ID) (*company.Company, error) {
	return f.co, nil
}

type fakeCustomers struct{ byID map[id.ID]*customer.Customer }

func (f *fakeCustomers) GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	c, ok := f.byID[customerID]
	if !ok {
		return nil, apperror.NewNotFound("customer", customerID.String())
	}
	return c, nil
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

// In-memory sys_sequences for the internal numerator.
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

// --- fixtures ---

type fixture struct {
	svc       *Service
	repo      *fakeSaleRepo
	reservoir *fakeReservoir
	emitter   *fakeEmitter
	stock     *fakeStockApplier
	co        *company.Company
	productA  *product.Product
	ctx       context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	co := company.NewCompany("C1", "Padaria Central LTDA", "12345678000190")
	co.FiscalEnabled = true
	co.StateRegistration = "1234567890"
	co.CRT = "1"
	co.NoProductDescription = "VENDA AVULSA"

	productA := product.NewProduct("P-A", "Product A", product.KindGoods)
	productA.TracksStock = true
	productA.Price = types.NewMoney(10)
	productA.Tax = fiscal.TaxSnapshot{NCM: "19059090", CFOP: "5102", Origin: "0", CSOSN: "102"}

	repo := newFakeSaleRepo()
	reservoir := &fakeReservoir{}
	emitter := &fakeEmitter{result: &fiscal.Result{Authorized: true, AccessKey: "NFe123", Protocol: "135"}}
	stockApplier := &fakeStockApplier{}

	svc := NewService(
		repo,
		&fakeCompanies{co: co},
		&fakeCustomers{byID: map[id.ID]*customer.Customer{}},
		&fakeProductCatalog{byID: map[id.ID]*product.Product{productA.ID: productA}},
		emitter,
		reservoir,
		stockApplier,
		nil,
		numerator.New(&memSequences{}),
	)

	operatorID := id.New()
	ctx := appctx.WithOperator(context.Background(), &appctx.OperatorContext{
		OperatorID:    operatorID.String(),
		CompanyID:     co.ID.String(),
		Login:         "maria",
		ReceiptSeries: 3,
	})

	return &fixture{
		svc:       svc,
		repo:      repo,
		reservoir: reservoir,
		emitter:   emitter,
		stock:     stockApplier,
		co:        co,
		productA:  productA,
		ctx:       ctx,
	}
}

func (f *fixture) cartProductA(qty int64) cart.Cart {
	return cart.Cart{Lines: []cart.Line{{
		LineKey:   id.New(),
		ProductID: &f.productA.ID,
		Quantity:  types.NewQuantityFromInt(qty),
		UnitPrice: types.NewMoney(10),
	}}}
}

func cashFor(total types.Money) cart.Payment {
	return cart.NewCashPayment(total, total)
}

// --- plan tests ---

func TestBuildPlan_Steps(t *testing.T) {
	c := cart.Cart{Lines: []cart.Line{{
		LineKey: id.New(), Description: "x",
		Quantity: types.NewQuantityFromInt(1), UnitPrice: types.NewMoney(5),
	}}}
	p := cashFor(types.NewMoney(5))

	plan, err := BuildPlan(c, p, PlanConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{StepPersistSale, StepApplyStock, StepFinalize}, plan.Steps)

	plan, err = BuildPlan(c, p, PlanConfig{Fiscal: true, Series: 3})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{StepPersistSale, StepReserveNumber, StepEmitFiscal, StepApplyStock, StepFinalize},
		plan.Steps)
	assert.Equal(t, fiscal.ModelNFCe, plan.Model)
}

func TestBuildPlan_Deterministic(t *testing.T) {
	c := cart.Cart{Lines: []cart.Line{{
		LineKey: id.MustParse("01912345-0000-7000-8000-000000000001"), Description: "x",
		Quantity: types.NewQuantityFromInt(2), UnitPrice: types.NewMoney(10),
	}}}
	p := cashFor(types.NewMoney(20))
	cfg := PlanConfig{Fiscal: true, Series: 1}

	a, err := BuildPlan(c, p, cfg)
	require.NoError(t, err)
	b, err := BuildPlan(c, p, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildPlan_MissingSeries(t *testing.T) {
	c := cart.Cart{Lines: []cart.Line{{
		LineKey: id.New(), Description: "x",
		Quantity: types.NewQuantityFromInt(1), UnitPrice: types.NewMoney(5),
	}}}

	_, err := BuildPlan(c, cashFor(types.NewMoney(5)), PlanConfig{Fiscal: true, Series: 0})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
}

func TestBuildPlan_InvalidCartLeavesNoTrace(t *testing.T) {
	_, err := BuildPlan(cart.Cart{}, cart.Payment{}, PlanConfig{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

// --- finalize tests ---

func TestFinalize_CashWithoutFiscal(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:    f.cartProductA(2),
		Payment: cashFor(types.NewMoney(20)),
	})
	require.NoError(t, err)

	assert.True(t, res.ClearSession)
	assert.Equal(t, StatusFinalized, res.Sale.Status)
	assert.Equal(t, fiscal.StatusNotApplicable, res.FiscalStatus)
	assert.True(t, res.Sale.GrandTotal.Equal(types.NewMoney(20)))
	assert.NotEmpty(t, res.Sale.Number)
	assert.NotNil(t, res.Sale.FinalizedAt)

	assert.Equal(t, 0, f.reservoir.calls)
	assert.Equal(t, 0, f.emitter.calls)
	require.Equal(t, 1, f.stock.calls)
	require.Len(t, f.stock.lines, 1)
	assert.Equal(t, types.NewQuantityFromInt(2), f.stock.lines[0].Quantity)
}

func TestFinalize_FiscalAuthorized(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       f.cartProductA(2),
		Payment:    cashFor(types.NewMoney(20)),
		EmitFiscal: true,
	})
	require.NoError(t, err)

	assert.Equal(t, fiscal.StatusAuthorized, res.FiscalStatus)
	assert.Equal(t, "NFe123", res.Sale.Fiscal.AccessKey)
	assert.Equal(t, int64(1), res.Sale.Fiscal.Number)
	assert.Equal(t, 3, res.Sale.Fiscal.Series)
	assert.Equal(t, 1, f.reservoir.calls)

	require.Equal(t, 1, f.emitter.calls)
	assert.Equal(t, int64(1), f.emitter.lastDoc.Number)
	assert.Equal(t, 3, f.emitter.lastDoc.Series)
	assert.Equal(t, fiscal.FinalityNormal, f.emitter.lastDoc.Finality)
}

func TestFinalize_FiscalRejectedStillFinalizes(t *testing.T) {
	f := newFixture(t)
	f.emitter.result = &fiscal.Result{Authorized: false, Reason: "duplicate key"}

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       f.cartProductA(2),
		Payment:    cashFor(types.NewMoney(20)),
		EmitFiscal: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFinalized, res.Sale.Status)
	assert.Equal(t, fiscal.StatusRejected, res.FiscalStatus)
	assert.Equal(t, "duplicate key", res.Sale.Fiscal.Reason)
	assert.True(t, res.ClearSession)

	// Stock still moved: fiscal failure never blocks the close.
	assert.Equal(t, 1, f.stock.calls)
}

func TestFinalize_TransportFailureParksPending(t *testing.T) {
	f := newFixture(t)
	f.emitter.err = apperror.NewFiscalTransport("connection refused", errors.New("dial tcp"))

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       f.cartProductA(1),
		Payment:    cashFor(types.NewMoney(10)),
		EmitFiscal: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFinalized, res.Sale.Status)
	assert.Equal(t, fiscal.StatusPending, res.FiscalStatus)
	assert.True(t, res.Sale.Fiscal.HasReservedNumber(), "number stays burned")
	assert.True(t, res.ClearSession)
}

func TestFinalize_MissingSeriesFailsBeforeAnyEffect(t *testing.T) {
	f := newFixture(t)
	ctx := appctx.WithOperator(context.Background(), &appctx.OperatorContext{
		OperatorID: id.New().String(),
		CompanyID:  f.co.ID.String(),
		// ReceiptSeries deliberately zero.
	})

	_, err := f.svc.Finalize(ctx, FinalizeRequest{
		Cart:       f.cartProductA(1),
		Payment:    cashFor(types.NewMoney(10)),
		EmitFiscal: true,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfiguration))

	assert.Empty(t, f.repo.sales, "nothing persisted")
	assert.Equal(t, 0, f.reservoir.calls)
	assert.Equal(t, 0, f.stock.calls)
}

func TestFinalize_DoubleFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)

	c := f.cartProductA(2)
	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       c,
		Payment:    cashFor(types.NewMoney(20)),
		EmitFiscal: true,
	})
	require.NoError(t, err)
	firstCount := len(f.repo.items[res.Sale.ID])

	again, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		SaleID:     &res.Sale.ID,
		Cart:       c,
		Payment:    cashFor(types.NewMoney(20)),
		EmitFiscal: true,
	})
	require.NoError(t, err)

	assert.True(t, again.ClearSession)
	assert.Equal(t, firstCount, len(f.repo.items[res.Sale.ID]), "same row count")
	assert.Equal(t, 1, f.emitter.calls, "no second emission")
	assert.Equal(t, 1, f.reservoir.calls, "no second reservation")
}

func TestFinalize_ReconcilesHeldItemsByLineKey(t *testing.T) {
	f := newFixture(t)

	c := f.cartProductA(2)
	held, err := f.svc.Hold(f.ctx, HoldRequest{Cart: c})
	require.NoError(t, err)
	require.Len(t, f.repo.items[held.ID], 1)
	heldItemID := f.repo.items[held.ID][0].ID

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		SaleID:  &held.ID,
		Cart:    c,
		Payment: cashFor(types.NewMoney(20)),
	})
	require.NoError(t, err)

	require.Len(t, f.repo.items[res.Sale.ID], 1, "same line key never duplicates rows")
	assert.Equal(t, heldItemID, f.repo.items[res.Sale.ID][0].ID, "persisted item identity survives")
	assert.Equal(t, held.Number, res.Sale.Number, "draft keeps its number")
}

func TestFinalize_ProductlessLineUsesCompanyDefaults(t *testing.T) {
	f := newFixture(t)
	f.co.NoProductTax = fiscal.TaxSnapshot{NCM: "00000000", CFOP: "5102", Origin: "0", CSOSN: "102"}

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart: cart.Cart{Lines: []cart.Line{{
			LineKey:     id.New(),
			Description: "umbrella repair",
			Quantity:    types.NewQuantityFromInt(1),
			UnitPrice:   types.NewMoney(15),
		}}},
		Payment:    cashFor(types.NewMoney(15)),
		EmitFiscal: true,
	})
	require.NoError(t, err)

	items := f.repo.items[res.Sale.ID]
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ProductID)
	assert.Equal(t, "umbrella repair", items[0].Description)
	assert.Equal(t, "00000000", items[0].Tax.NCM)

	require.Equal(t, 1, f.emitter.calls)
	assert.Equal(t, "DIVERSOS", f.emitter.lastDoc.Items[0].Code)
}

// --- hold / reemit / queries ---

func TestHold_CreatesResumableDraft(t *testing.T) {
	f := newFixture(t)

	held, err := f.svc.Hold(f.ctx, HoldRequest{Cart: f.cartProductA(3), Comment: "table 4"})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, held.Status)
	assert.NotEmpty(t, held.Number)

	list, err := f.svc.ListHeld(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, held.ID, list[0].ID)

	assert.Equal(t, 0, f.stock.calls, "holding moves no stock")
}

func TestReemitFiscal_ReusesReservedNumber(t *testing.T) {
	f := newFixture(t)
	f.emitter.err = apperror.NewFiscalTransport("connection refused", errors.New("dial tcp"))

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       f.cartProductA(1),
		Payment:    cashFor(types.NewMoney(10)),
		EmitFiscal: true,
	})
	require.NoError(t, err)
	require.Equal(t, fiscal.StatusPending, res.FiscalStatus)
	reserved := res.Sale.Fiscal.Number

	// Authority reachable again.
	f.emitter.err = nil
	f.emitter.result = &fiscal.Result{Authorized: true, AccessKey: "NFe999", Protocol: "246"}

	updated, err := f.svc.ReemitFiscal(f.ctx, res.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusAuthorized, updated.Fiscal.Status)
	assert.Equal(t, "NFe999", updated.Fiscal.AccessKey)
	assert.Equal(t, reserved, updated.Fiscal.Number)
	assert.Equal(t, 1, f.reservoir.calls, "no new reservation")
	assert.Equal(t, reserved, f.emitter.lastDoc.Number)

	pending, err := f.svc.ListFiscalPending(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReemitFiscal_RejectsAuthorizedSale(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Finalize(f.ctx, FinalizeRequest{
		Cart:       f.cartProductA(1),
		Payment:    cashFor(types.NewMoney(10)),
		EmitFiscal: true,
	})
	require.NoError(t, err)
	require.Equal(t, fiscal.StatusAuthorized, res.FiscalStatus)

	_, err = f.svc.ReemitFiscal(f.ctx, res.Sale.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestFinalize_RequiresOperatorSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Finalize(context.Background(), FinalizeRequest{
		Cart:    f.cartProductA(1),
		Payment: cashFor(types.NewMoney(10)),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthorized))
}
