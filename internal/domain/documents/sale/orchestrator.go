package sale

import (
	"context"
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/cart"
	"caixa/internal/domain/fiscal"
	"caixa/internal/domain/progress"
	"caixa/internal/domain/registers/stock"
	"caixa/pkg/logger"
)

// Step identifiers reported to the progress surface.
const (
	StepValidateCart  = "validate-cart"
	StepPersistSale   = "persist-sale"
	StepReserveNumber = "reserve-number"
	StepEmitFiscal    = "emit-fiscal"
	StepApplyStock    = "apply-stock"
	StepFinalize      = "finalize"
)

// PlanConfig is the static input to plan building, resolved by the
// service from the company record and the operator session.
type PlanConfig struct {
	// Fiscal turns emission on for this finalization. Requires the
	// company to have fiscal enabled and the caller to request it.
	Fiscal bool

	// Series is the operator's fiscal numbering lane. Required when
	// Fiscal is set; zero fails the plan with a configuration error
	// before any effect runs.
	Series int

	Model fiscal.Model
}

// Plan is the deterministic output of BuildPlan: validated totals plus
// the ordered effect steps. Building a plan performs no I/O.
type Plan struct {
	Cart    cart.Cart
	Totals  cart.Totals
	Payment cart.Payment

	Fiscal bool
	Series int
	Model  fiscal.Model

	Steps []string
}

// BuildPlan validates the cart and payment and decides the effect
// sequence. Pure: same inputs always yield the same plan, and a cart
// that fails validation leaves no trace anywhere.
func BuildPlan(c cart.Cart, p cart.Payment, cfg PlanConfig) (Plan, error) {
	totals, err := cart.Aggregate(c)
	if err != nil {
		return Plan{}, err
	}
	if err := p.Validate(totals.GrandTotal); err != nil {
		return Plan{}, err
	}

	if cfg.Fiscal && cfg.Series <= 0 {
		return Plan{}, apperror.NewConfiguration("operator has no fiscal series configured").
			WithDetail("field", "receiptSeries")
	}

	model := cfg.Model
	if model == 0 {
		model = fiscal.ModelNFCe
	}

	steps := []string{StepPersistSale}
	if cfg.Fiscal {
		steps = append(steps, StepReserveNumber, StepEmitFiscal)
	}
	steps = append(steps, StepApplyStock, StepFinalize)

	return Plan{
		Cart:    c,
		Totals:  totals,
		Payment: p,
		Fiscal:  cfg.Fiscal,
		Series:  cfg.Series,
		Model:   model,
		Steps:   steps,
	}, nil
}

// NumberReservoir is the gap-free number source consumed by the
// executor. Satisfied by numerator.Reservoir.
type NumberReservoir interface {
	Reserve(ctx context.Context, companyID id.ID, series int, model int) (int64, error)
}

// StockApplier is the slice of the stock service the executor needs.
type StockApplier interface {
	ApplySale(ctx context.Context, saleID id.ID, period time.Time, lines []stock.SaleLine) []stock.Warning
}

// DocumentBuilder produces the fiscal emission payload for a persisted
// sale. Supplied by the service, which owns company and catalog lookups.
type DocumentBuilder func(s *Sale) (*fiscal.Document, error)

// Result is the terminal outcome of a finalization run.
type Result struct {
	Sale         *Sale           `json:"sale"`
	FiscalStatus fiscal.Status   `json:"fiscalStatus"`
	Warnings     []stock.Warning `json:"warnings,omitempty"`

	// ClearSession tells the client to drop its local cart. Set on every
	// terminal outcome, including fiscal rejection and transport failure:
	// the sale is closed either way.
	ClearSession bool `json:"clearSession"`
}

// Executor applies a plan's effects sequentially through injected
// collaborators. Each step persists its own state; there is no
// transaction spanning steps, so a crash mid-run leaves a resumable
// in_progress sale rather than a rolled-back one.
type Executor struct {
	repo      Repository
	reservoir NumberReservoir
	emitter   fiscal.Emitter
	stock     StockApplier
	progress  progress.Reporter
}

// NewExecutor creates an executor. A nil reporter degrades to noop.
func NewExecutor(repo Repository, reservoir NumberReservoir, emitter fiscal.Emitter, stockSvc StockApplier, reporter progress.Reporter) *Executor {
	if reporter == nil {
		reporter = progress.NewNopReporter()
	}
	return &Executor{
		repo:      repo,
		reservoir: reservoir,
		emitter:   emitter,
		stock:     stockSvc,
		progress:  reporter,
	}
}

// Run executes the plan against the given sale. The sale must already
// carry its items and totals; Run persists, reserves, emits, moves
// stock and finalizes, in that order.
//
// Cancellation is honored only between steps: a fiscal submission in
// flight is never abandoned, since the authority outcome would be
// unknown while the number stays burned.
func (e *Executor) Run(ctx context.Context, s *Sale, plan Plan, isNew bool, buildDoc DocumentBuilder) (*Result, error) {
	if err := e.persistSale(ctx, s, isNew); err != nil {
		return nil, err
	}

	if plan.Fiscal {
		if err := e.checkCancelled(ctx); err != nil {
			return nil, err
		}
		if err := e.reserveNumber(ctx, s, plan); err != nil {
			return nil, err
		}

		if err := e.checkCancelled(ctx); err != nil {
			return nil, err
		}
		e.emitFiscal(ctx, s, buildDoc)
	}

	warnings := e.applyStock(ctx, s)

	e.progress.Report(ctx, StepFinalize, progress.StatusLoading, "")
	s.MarkFinalized()
	if err := e.repo.Update(ctx, s); err != nil {
		e.progress.Report(ctx, StepFinalize, progress.StatusError, err.Error())
		return nil, err
	}
	e.progress.Report(ctx, StepFinalize, progress.StatusSuccess, "")

	logger.Info(ctx, "sale finalized",
		"sale_id", s.ID,
		"number", s.Number,
		"grand_total", s.GrandTotal,
		"fiscal_status", s.Fiscal.Status)

	return &Result{
		Sale:         s,
		FiscalStatus: s.Fiscal.Status,
		Warnings:     warnings,
		ClearSession: true,
	}, nil
}

func (e *Executor) persistSale(ctx context.Context, s *Sale, isNew bool) error {
	e.progress.Report(ctx, StepPersistSale, progress.StatusLoading, "")

	var err error
	if isNew {
		err = e.repo.Create(ctx, s)
	} else {
		s.Touch()
		err = e.repo.Update(ctx, s)
	}
	if err != nil {
		e.progress.Report(ctx, StepPersistSale, progress.StatusError, err.Error())
		return err
	}

	if err := e.repo.ReconcileItems(ctx, s.ID, s.Items); err != nil {
		e.progress.Report(ctx, StepPersistSale, progress.StatusError, err.Error())
		return err
	}

	e.progress.Report(ctx, StepPersistSale, progress.StatusSuccess, "")
	return nil
}

func (e *Executor) reserveNumber(ctx context.Context, s *Sale, plan Plan) error {
	// A previously reserved number is never released and never
	// re-reserved: gap-free numbering burns it into this sale.
	if s.Fiscal.HasReservedNumber() {
		e.progress.Report(ctx, StepReserveNumber, progress.StatusSuccess, "")
		return nil
	}

	e.progress.Report(ctx, StepReserveNumber, progress.StatusLoading, "")

	number, err := e.reservoir.Reserve(ctx, s.CompanyID, plan.Series, int(plan.Model))
	if err != nil {
		e.progress.Report(ctx, StepReserveNumber, progress.StatusError, err.Error())
		return err
	}

	s.Fiscal.Model = plan.Model
	s.Fiscal.Series = plan.Series
	s.Fiscal.Number = number
	s.Fiscal.Status = fiscal.StatusProcessing

	if err := e.repo.UpdateFiscal(ctx, s.ID, s.Fiscal); err != nil {
		e.progress.Report(ctx, StepReserveNumber, progress.StatusError, err.Error())
		return err
	}

	e.progress.Report(ctx, StepReserveNumber, progress.StatusSuccess, "")
	return nil
}

// emitFiscal drives the emission state machine. Never returns an error:
// every fiscal outcome, including transport failure, leaves the sale on
// its way to finalized with the sub-state recorded.
func (e *Executor) emitFiscal(ctx context.Context, s *Sale, buildDoc DocumentBuilder) {
	e.progress.Report(ctx, StepEmitFiscal, progress.StatusLoading, "")

	doc, err := buildDoc(s)
	if err != nil {
		s.Fiscal.Status = fiscal.StatusPending
		s.Fiscal.Reason = err.Error()
		e.storeFiscal(ctx, s)
		e.progress.Report(ctx, StepEmitFiscal, progress.StatusError, err.Error())
		return
	}

	// The submission itself must not be cancelled mid-flight.
	result, err := e.emitter.Emit(context.WithoutCancel(ctx), doc)
	ApplyEmissionOutcome(&s.Fiscal, result, err)
	e.storeFiscal(ctx, s)

	switch s.Fiscal.Status {
	case fiscal.StatusAuthorized:
		e.progress.Report(ctx, StepEmitFiscal, progress.StatusSuccess, "")
	default:
		e.progress.Report(ctx, StepEmitFiscal, progress.StatusError, s.Fiscal.Reason)
	}
}

func (e *Executor) storeFiscal(ctx context.Context, s *Sale) {
	if err := e.repo.UpdateFiscal(ctx, s.ID, s.Fiscal); err != nil {
		logger.Error(ctx, "store fiscal state failed",
			"sale_id", s.ID, "error", err)
	}
}

func (e *Executor) applyStock(ctx context.Context, s *Sale) []stock.Warning {
	e.progress.Report(ctx, StepApplyStock, progress.StatusLoading, "")

	warnings := e.stock.ApplySale(ctx, s.ID, s.Date, StockLines(s.Items))
	if len(warnings) > 0 {
		e.progress.Report(ctx, StepApplyStock, progress.StatusError, warnings[0].Message)
	} else {
		e.progress.Report(ctx, StepApplyStock, progress.StatusSuccess, "")
	}
	return warnings
}

func (e *Executor) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperror.NewInternal(err).WithDetail("reason", "cancelled between steps")
	}
	return nil
}

// ApplyEmissionOutcome maps the emitter's answer onto the fiscal
// linkage: authorized, rejected, or pending when the transport failed
// and the authority outcome is unknown. Shared by finalize and reemit.
func ApplyEmissionOutcome(info *fiscal.DocumentInfo, result *fiscal.Result, err error) {
	switch {
	case err != nil && fiscal.IsTransportError(err):
		info.Status = fiscal.StatusPending
		info.Reason = err.Error()
	case err != nil:
		info.Status = fiscal.StatusRejected
		info.Reason = err.Error()
	case result.Authorized:
		now := time.Now()
		info.Status = fiscal.StatusAuthorized
		info.AccessKey = result.AccessKey
		info.Protocol = result.Protocol
		info.Reason = ""
		info.IssuedAt = &now
	default:
		info.Status = fiscal.StatusRejected
		info.Reason = result.Reason
	}
}

// StockLines projects sale items onto the stock engine's input.
func StockLines(items []SaleItem) []stock.SaleLine {
	lines := make([]stock.SaleLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, stock.SaleLine{
			SaleItemID: it.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
		})
	}
	return lines
}
