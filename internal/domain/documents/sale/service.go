package sale

import (
	"context"
	"fmt"
	"time"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
	"caixa/internal/domain/cart"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/customer"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/fiscal"
	"caixa/internal/domain/progress"
	"caixa/pkg/logger"
	"caixa/pkg/numerator"
)

// CompanyLookup is the slice of the company catalog the service needs.
type CompanyLookup interface {
	GetByID(ctx context.Context, companyID id.ID) (*company.Company, error)
}

// CustomerLookup resolves optional sale customers.
type CustomerLookup interface {
	GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error)
}

// ProductCatalog resolves cart lines to catalog products.
type ProductCatalog interface {
	GetMany(ctx context.Context, ids []id.ID) ([]*product.Product, error)
}

// HoldRequest creates or updates an in_progress draft.
type HoldRequest struct {
	SaleID     *id.ID    `json:"saleId,omitempty"`
	Cart       cart.Cart `json:"cart"`
	CustomerID *id.ID    `json:"customerId,omitempty"`
	Comment    string    `json:"comment,omitempty"`
}

// FinalizeRequest closes a sale.
type FinalizeRequest struct {
	// SaleID resumes a held draft; nil finalizes a fresh cart.
	SaleID     *id.ID       `json:"saleId,omitempty"`
	Cart       cart.Cart    `json:"cart"`
	Payment    cart.Payment `json:"payment"`
	CustomerID *id.ID       `json:"customerId,omitempty"`
	Comment    string       `json:"comment,omitempty"`

	// EmitFiscal requests a consumer receipt. Only effective when the
	// company has fiscal emission enabled.
	EmitFiscal bool `json:"emitFiscal"`
}

// Service provides sale operations: holding drafts, finalization and
// fiscal follow-up.
type Service struct {
	repo      Repository
	companies CompanyLookup
	customers CustomerLookup
	products  ProductCatalog
	emitter   fiscal.Emitter
	executor  *Executor
	numerator *numerator.Service
}

// NewService creates a sale service. The executor carries the effect
// collaborators (repo, reservoir, emitter, stock, progress).
func NewService(
	repo Repository,
	companies CompanyLookup,
	customers CustomerLookup,
	products ProductCatalog,
	emitter fiscal.Emitter,
	reservoir NumberReservoir,
	stockSvc StockApplier,
	reporter progress.Reporter,
	num *numerator.Service,
) *Service {
	return &Service{
		repo:      repo,
		companies: companies,
		customers: customers,
		products:  products,
		emitter:   emitter,
		executor:  NewExecutor(repo, reservoir, emitter, stockSvc, reporter),
		numerator: num,
	}
}

// Hold creates or updates an in_progress sale so the operator can park
// a cart and resume it later.
func (s *Service) Hold(ctx context.Context, req HoldRequest) (*Sale, error) {
	op, err := s.requireOperator(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := cart.Aggregate(req.Cart)
	if err != nil {
		return nil, err
	}

	doc, isNew, err := s.loadOrCreate(ctx, req.SaleID, op)
	if err != nil {
		return nil, err
	}
	if doc.IsFinalized() {
		return nil, apperror.NewValidation("finalized sale cannot be held").
			WithDetail("saleId", doc.ID.String())
	}

	co, err := s.companies.GetByID(ctx, doc.CompanyID)
	if err != nil {
		return nil, err
	}

	items, _, err := s.buildItems(ctx, req.Cart, co)
	if err != nil {
		return nil, err
	}

	doc.CustomerID = req.CustomerID
	doc.Comment = req.Comment
	doc.ApplyTotals(totals)
	doc.Items = items

	if err := s.assignNumber(ctx, doc); err != nil {
		return nil, err
	}

	if isNew {
		err = s.repo.Create(ctx, doc)
	} else {
		doc.Touch()
		err = s.repo.Update(ctx, doc)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReconcileItems(ctx, doc.ID, doc.Items); err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale held", "sale_id", doc.ID, "number", doc.Number)
	return doc, nil
}

// Finalize runs the full finalization workflow: plan, persist, reserve,
// emit, stock, finalize. Fiscal failure never blocks the close.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*Result, error) {
	op, err := s.requireOperator(ctx)
	if err != nil {
		return nil, err
	}

	companyID, err := id.Parse(op.CompanyID)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid session company")
	}
	co, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	cfg := PlanConfig{
		Fiscal: req.EmitFiscal && co.FiscalEnabled,
		Series: op.ReceiptSeries,
		Model:  fiscal.ModelNFCe,
	}

	s.executor.progress.Report(ctx, StepValidateCart, progress.StatusLoading, "")
	plan, err := BuildPlan(req.Cart, req.Payment, cfg)
	if err != nil {
		s.executor.progress.Report(ctx, StepValidateCart, progress.StatusError, err.Error())
		return nil, err
	}
	s.executor.progress.Report(ctx, StepValidateCart, progress.StatusSuccess, "")

	doc, isNew, err := s.loadOrCreate(ctx, req.SaleID, op)
	if err != nil {
		return nil, err
	}
	if doc.IsFinalized() {
		// Double finalize is idempotent: the sale is already closed and
		// the client just needs its terminal state back.
		items, err := s.repo.GetItems(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Items = items
		return &Result{
			Sale:         doc,
			FiscalStatus: doc.Fiscal.Status,
			ClearSession: true,
		}, nil
	}

	items, productsByID, err := s.buildItems(ctx, req.Cart, co)
	if err != nil {
		return nil, err
	}

	doc.CustomerID = req.CustomerID
	if req.Comment != "" {
		doc.Comment = req.Comment
	}
	doc.ApplyTotals(plan.Totals)
	doc.Payment = req.Payment
	doc.Items = items
	if err := s.assignNumber(ctx, doc); err != nil {
		return nil, err
	}

	recipient, err := s.resolveRecipient(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	buildDoc := func(sl *Sale) (*fiscal.Document, error) {
		return BuildFiscalDocument(sl, co, recipient, productsByID)
	}

	return s.executor.Run(ctx, doc, plan, isNew, buildDoc)
}

// ReemitFiscal re-drives emission for a finalized sale stuck in
// pending or rejected. The reserved number is reused, never replaced.
func (s *Service) ReemitFiscal(ctx context.Context, saleID id.ID) (*Sale, error) {
	doc, err := s.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}

	if !doc.IsFinalized() {
		return nil, apperror.NewValidation("only finalized sales can be re-emitted").
			WithDetail("saleId", saleID.String())
	}
	if !doc.Fiscal.Status.NeedsAttention() {
		return nil, apperror.NewValidation("sale has no pending fiscal document").
			WithDetail("fiscalStatus", string(doc.Fiscal.Status))
	}
	if !doc.Fiscal.HasReservedNumber() {
		return nil, apperror.NewConfiguration("sale has no reserved fiscal number").
			WithDetail("saleId", saleID.String())
	}

	co, err := s.companies.GetByID(ctx, doc.CompanyID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.resolveRecipient(ctx, doc.CustomerID)
	if err != nil {
		return nil, err
	}
	productsByID, err := s.loadItemProducts(ctx, doc.Items)
	if err != nil {
		return nil, err
	}

	doc.Fiscal.Status = fiscal.StatusProcessing
	if err := s.repo.UpdateFiscal(ctx, doc.ID, doc.Fiscal); err != nil {
		return nil, err
	}

	payload, err := BuildFiscalDocument(doc, co, recipient, productsByID)
	if err != nil {
		doc.Fiscal.Status = fiscal.StatusPending
		doc.Fiscal.Reason = err.Error()
		_ = s.repo.UpdateFiscal(ctx, doc.ID, doc.Fiscal)
		return nil, err
	}

	result, emitErr := s.emitter.Emit(context.WithoutCancel(ctx), payload)
	ApplyEmissionOutcome(&doc.Fiscal, result, emitErr)
	if err := s.repo.UpdateFiscal(ctx, doc.ID, doc.Fiscal); err != nil {
		return nil, err
	}

	logger.Info(ctx, "fiscal re-emission finished",
		"sale_id", doc.ID,
		"fiscal_number", doc.Fiscal.Number,
		"fiscal_status", doc.Fiscal.Status)

	return doc, nil
}

// Get retrieves a sale with items.
func (s *Service) Get(ctx context.Context, saleID id.ID) (*Sale, error) {
	doc, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	doc.Items = items
	return doc, nil
}

// ListHeld lists the current operator's in_progress drafts.
func (s *Service) ListHeld(ctx context.Context) ([]Sale, error) {
	op, err := s.requireOperator(ctx)
	if err != nil {
		return nil, err
	}
	operatorID, err := id.Parse(op.OperatorID)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid session operator")
	}
	return s.repo.ListHeld(ctx, operatorID)
}

// ListFiscalPending lists finalized sales needing fiscal follow-up.
func (s *Service) ListFiscalPending(ctx context.Context) ([]Sale, error) {
	op, err := s.requireOperator(ctx)
	if err != nil {
		return nil, err
	}
	companyID, err := id.Parse(op.CompanyID)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid session company")
	}
	return s.repo.ListFiscalPending(ctx, companyID)
}

// List retrieves sales with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) requireOperator(ctx context.Context) (*appctx.OperatorContext, error) {
	op := appctx.GetOperator(ctx)
	if op == nil {
		return nil, apperror.NewUnauthorized("operator session required")
	}
	return op, nil
}

// resolveRecipient maps an optional customer to the document recipient.
// Customers without a tax id stay anonymous on the receipt.
func (s *Service) resolveRecipient(ctx context.Context, customerID *id.ID) (*fiscal.Recipient, error) {
	if customerID == nil {
		return nil, nil
	}
	c, err := s.customers.GetByID(ctx, *customerID)
	if err != nil {
		return nil, err
	}
	if c.TaxID == nil || *c.TaxID == "" {
		return nil, nil
	}
	return &fiscal.Recipient{TaxID: *c.TaxID, Name: c.Name}, nil
}

func (s *Service) loadOrCreate(ctx context.Context, saleID *id.ID, op *appctx.OperatorContext) (*Sale, bool, error) {
	if saleID != nil {
		doc, err := s.repo.GetByID(ctx, *saleID)
		if err != nil {
			return nil, false, err
		}
		return doc, false, nil
	}

	companyID, err := id.Parse(op.CompanyID)
	if err != nil {
		return nil, false, apperror.NewUnauthorized("invalid session company")
	}
	operatorID, err := id.Parse(op.OperatorID)
	if err != nil {
		return nil, false, apperror.NewUnauthorized("invalid session operator")
	}
	return NewSale(companyID, operatorID), true, nil
}

func (s *Service) assignNumber(ctx context.Context, doc *Sale) error {
	if doc.Number != "" {
		return nil
	}
	number, err := s.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("SL"),
		&numerator.Options{Strategy: numerator.StrategyCached},
		time.Now())
	if err != nil {
		return fmt.Errorf("generate sale number: %w", err)
	}
	doc.Number = number
	return nil
}

// buildItems resolves cart lines to sale items with frozen tax
// snapshots: product lines copy the product's snapshot, product-less
// lines take the company's configured defaults.
func (s *Service) buildItems(ctx context.Context, c cart.Cart, co *company.Company) ([]SaleItem, map[id.ID]*product.Product, error) {
	var productIDs []id.ID
	for _, line := range c.Lines {
		if line.ProductID != nil {
			productIDs = append(productIDs, *line.ProductID)
		}
	}

	byID := make(map[id.ID]*product.Product, len(productIDs))
	if len(productIDs) > 0 {
		list, err := s.products.GetMany(ctx, productIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("load products: %w", err)
		}
		for _, p := range list {
			byID[p.ID] = p
		}
	}

	items := make([]SaleItem, 0, len(c.Lines))
	for _, line := range c.Lines {
		item := SaleItem{
			ID:          id.New(),
			LineKey:     line.LineKey,
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			Addition:    line.Addition,
			Total:       line.Total(),
		}

		if line.ProductID != nil {
			p, ok := byID[*line.ProductID]
			if !ok {
				return nil, nil, apperror.NewNotFound("product", line.ProductID.String())
			}
			if item.Description == "" {
				item.Description = p.Name
			}
			item.Tax = p.Tax
		} else {
			if item.Description == "" {
				item.Description = co.NoProductDescription
			}
			item.Tax = co.NoProductTax
		}

		items = append(items, item)
	}
	return items, byID, nil
}

func (s *Service) loadItemProducts(ctx context.Context, items []SaleItem) (map[id.ID]*product.Product, error) {
	var ids []id.ID
	for _, it := range items {
		if it.ProductID != nil {
			ids = append(ids, *it.ProductID)
		}
	}
	byID := make(map[id.ID]*product.Product, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	list, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range list {
		byID[p.ID] = p
	}
	return byID, nil
}
