package cart

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"caixa/internal/core/apperror"
	"caixa/internal/core/types"
)

// PaymentKind discriminates the payment union.
type PaymentKind string

const (
	PaymentCash        PaymentKind = "cash"
	PaymentInstallment PaymentKind = "installment"
	PaymentMixed       PaymentKind = "mixed"
)

// Method is the settlement instrument.
type Method string

const (
	MethodCash        Method = "cash"
	MethodDebitCard   Method = "debit-card"
	MethodCreditCard  Method = "credit-card"
	MethodPix         Method = "pix"
	MethodStoreCredit Method = "store-credit"
)

// CashPayment records the tendered amount; change is derived from the
// grand total at finalization.
type CashPayment struct {
	Tendered types.Money `json:"tendered"`
	Change   types.Money `json:"change"`
}

// InstallmentPayment is a single-instrument payment split over time.
type InstallmentPayment struct {
	Method         Method      `json:"method"`
	Installments   int         `json:"installments"`
	PerInstallment types.Money `json:"perInstallment"`
}

// Allocation is one slice of a mixed payment.
type Allocation struct {
	Method       Method      `json:"method"`
	Amount       types.Money `json:"amount"`
	Installments int         `json:"installments,omitempty"`
}

// MixedPayment splits the total across several instruments.
type MixedPayment struct {
	Allocations []Allocation `json:"allocations"`
}

// Payment is a tagged union: exactly one variant is set, selected by Kind.
// Serialized as a JSON envelope {"kind": "...", ...variant fields}.
type Payment struct {
	Kind        PaymentKind
	Cash        *CashPayment
	Installment *InstallmentPayment
	Mixed       *MixedPayment
}

// NewCashPayment builds a cash payment for the given total, computing change.
func NewCashPayment(tendered, total types.Money) Payment {
	return Payment{
		Kind: PaymentCash,
		Cash: &CashPayment{
			Tendered: tendered,
			Change:   tendered.Sub(total),
		},
	}
}

// Validate checks the variant against the sale's grand total.
func (p Payment) Validate(grandTotal types.Money) error {
	switch p.Kind {
	case PaymentCash:
		if p.Cash == nil {
			return apperror.NewValidation("cash payment data missing")
		}
		if p.Cash.Tendered.LessThan(grandTotal) {
			return apperror.NewValidation("tendered amount is less than the total").
				WithDetail("tendered", p.Cash.Tendered.String()).
				WithDetail("total", grandTotal.String())
		}
		expected := p.Cash.Tendered.Sub(grandTotal)
		if !p.Cash.Change.Equal(expected) {
			return apperror.NewValidation("change does not match tendered minus total").
				WithDetail("expected", expected.String()).
				WithDetail("got", p.Cash.Change.String())
		}
		return nil

	case PaymentInstallment:
		if p.Installment == nil {
			return apperror.NewValidation("installment payment data missing")
		}
		if p.Installment.Installments < 1 {
			return apperror.NewValidation("installment count must be at least 1").
				WithDetail("installments", p.Installment.Installments)
		}
		if !p.Installment.PerInstallment.IsPositive() {
			return apperror.NewValidation("installment amount must be positive")
		}
		return nil

	case PaymentMixed:
		if p.Mixed == nil || len(p.Mixed.Allocations) == 0 {
			return apperror.NewValidation("mixed payment requires allocations")
		}
		sum := types.Zero()
		for i, alloc := range p.Mixed.Allocations {
			if !alloc.Amount.IsPositive() {
				return apperror.NewValidation("allocation amount must be positive").
					WithDetail("allocationIndex", i)
			}
			sum = sum.Add(alloc.Amount)
		}
		if !sum.Equal(grandTotal) {
			return apperror.NewValidation("allocations must sum to the grand total").
				WithDetail("sum", sum.String()).
				WithDetail("total", grandTotal.String())
		}
		return nil

	default:
		return apperror.NewValidation("unknown payment kind").
			WithDetail("kind", string(p.Kind))
	}
}

type paymentEnvelope struct {
	Kind PaymentKind `json:"kind"`

	// cash
	Tendered *types.Money `json:"tendered,omitempty"`
	Change   *types.Money `json:"change,omitempty"`

	// installment
	Method         Method       `json:"method,omitempty"`
	Installments   int          `json:"installments,omitempty"`
	PerInstallment *types.Money `json:"perInstallment,omitempty"`

	// mixed
	Allocations []Allocation `json:"allocations,omitempty"`
}

// MarshalJSON flattens the active variant into the envelope.
func (p Payment) MarshalJSON() ([]byte, error) {
	env := paymentEnvelope{Kind: p.Kind}

	switch p.Kind {
	case PaymentCash:
		if p.Cash != nil {
			env.Tendered = &p.Cash.Tendered
			env.Change = &p.Cash.Change
		}
	case PaymentInstallment:
		if p.Installment != nil {
			env.Method = p.Installment.Method
			env.Installments = p.Installment.Installments
			env.PerInstallment = &p.Installment.PerInstallment
		}
	case PaymentMixed:
		if p.Mixed != nil {
			env.Allocations = p.Mixed.Allocations
		}
	}

	return json.Marshal(env)
}

// UnmarshalJSON restores the variant selected by the kind tag.
func (p *Payment) UnmarshalJSON(data []byte) error {
	var env paymentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	p.Kind = env.Kind
	p.Cash = nil
	p.Installment = nil
	p.Mixed = nil

	switch env.Kind {
	case PaymentCash:
		cash := &CashPayment{}
		if env.Tendered != nil {
			cash.Tendered = *env.Tendered
		}
		if env.Change != nil {
			cash.Change = *env.Change
		}
		p.Cash = cash
	case PaymentInstallment:
		inst := &InstallmentPayment{
			Method:       env.Method,
			Installments: env.Installments,
		}
		if env.PerInstallment != nil {
			inst.PerInstallment = *env.PerInstallment
		}
		p.Installment = inst
	case PaymentMixed:
		p.Mixed = &MixedPayment{Allocations: env.Allocations}
	case "":
		return fmt.Errorf("payment kind is required")
	default:
		return fmt.Errorf("unknown payment kind %q", env.Kind)
	}

	return nil
}

// Value implements driver.Valuer for JSONB storage.
func (p Payment) Value() (driver.Value, error) {
	if p.Kind == "" {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB storage.
func (p *Payment) Scan(src any) error {
	if src == nil {
		*p = Payment{}
		return nil
	}

	var source []byte
	switch v := src.(type) {
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Payment: %T", src)
	}

	if len(source) == 0 {
		*p = Payment{}
		return nil
	}
	return json.Unmarshal(source, p)
}
