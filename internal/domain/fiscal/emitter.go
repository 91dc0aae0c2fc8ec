// Package fiscal defines the fiscal document domain: the emission payload,
// the authority result, and the Emitter port implemented by the
// infrastructure client.
package fiscal

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"caixa/internal/core/apperror"
	"caixa/internal/core/types"
)

// Model is the fiscal document model code.
type Model int

const (
	// ModelNFe is the standard electronic invoice (model 55).
	ModelNFe Model = 55
	// ModelNFCe is the consumer receipt issued at the POS (model 65).
	ModelNFCe Model = 65
)

// Status is the fiscal sub-state of a sale. It evolves independently of
// the sale status: a finalized sale may still be pending or rejected
// fiscally.
type Status string

const (
	// StatusNotApplicable - no fiscal document was requested.
	StatusNotApplicable Status = "not_applicable"
	// StatusProcessing - submission in flight.
	StatusProcessing Status = "processing"
	// StatusAuthorized - authority accepted, access key and protocol stored.
	StatusAuthorized Status = "authorized"
	// StatusPending - transport failed, authority outcome unknown.
	// Requires manual re-trigger; never retried automatically.
	StatusPending Status = "pending"
	// StatusRejected - authority refused the document.
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further submission is expected.
func (s Status) IsTerminal() bool {
	return s == StatusAuthorized || s == StatusNotApplicable
}

// NeedsAttention reports whether the operator must follow up.
func (s Status) NeedsAttention() bool {
	return s == StatusPending || s == StatusRejected
}

// TaxSnapshot is the frozen tax attribute set of a sold line. Copied from
// the product (or the company's product-less defaults) at sale time so
// later catalog edits never change an issued document. The values are
// opaque to this system; computing them is out of scope.
type TaxSnapshot struct {
	NCM    string `json:"ncm"`
	CFOP   string `json:"cfop"`
	Origin string `json:"origin"`

	// CSTICMS is used under the normal tax regime, CSOSN under Simples
	// Nacional. Exactly one is expected to be set.
	CSTICMS string `json:"cstIcms,omitempty"`
	CSOSN   string `json:"csosn,omitempty"`

	CEST string `json:"cest,omitempty"`

	ICMSRate   decimal.Decimal `json:"icmsRate"`
	PISRate    decimal.Decimal `json:"pisRate"`
	COFINSRate decimal.Decimal `json:"cofinsRate"`

	CSTPIS    string `json:"cstPis,omitempty"`
	CSTCOFINS string `json:"cstCofins,omitempty"`
}

// Value implements driver.Valuer for JSONB storage.
func (t TaxSnapshot) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements sql.Scanner for JSONB storage.
func (t *TaxSnapshot) Scan(src any) error {
	if src == nil {
		*t = TaxSnapshot{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported type for TaxSnapshot: %T", src)
	}
}

// DocumentInfo is the fiscal linkage embedded in a sale or return.
type DocumentInfo struct {
	Model     Model      `db:"model" json:"model,omitempty"`
	Series    int        `db:"series" json:"series,omitempty"`
	Number    int64      `db:"number" json:"number,omitempty"`
	AccessKey string     `db:"access_key" json:"accessKey,omitempty"`
	Protocol  string     `db:"protocol" json:"protocol,omitempty"`
	Status    Status     `db:"status" json:"status"`
	Reason    string     `db:"reason" json:"reason,omitempty"`
	IssuedAt  *time.Time `db:"issued_at" json:"issuedAt,omitempty"`
}

// HasReservedNumber reports whether a gap-free number is already bound.
// A bound number is never released; re-emission must reuse it.
func (d DocumentInfo) HasReservedNumber() bool {
	return d.Number > 0
}

// Finality of the emitted document.
type Finality int

const (
	FinalityNormal Finality = 1
	FinalityReturn Finality = 4
)

// Item is one line of the emission payload.
type Item struct {
	Code        string
	Barcode     string
	Description string
	Quantity    types.Quantity
	UnitPrice   types.Money
	Discount    types.Money
	Total       types.Money
	Tax         TaxSnapshot
}

// PaymentEntry maps a settled amount to the authority's payment code
// (01 cash, 03 credit card, 04 debit card, 17 instant payment, ...).
type PaymentEntry struct {
	Code   string
	Amount types.Money
}

// Issuer is the emitting company as it appears on the document.
type Issuer struct {
	CNPJ              string
	Name              string
	TradeName         string
	StateRegistration string
	// CRT is the tax regime code (1 = Simples Nacional, 3 = normal).
	CRT       string
	CityCode  string
	StateCode string
}

// Recipient is the optional document recipient.
type Recipient struct {
	// TaxID is a CPF (11 digits) or CNPJ (14 digits).
	TaxID string
	Name  string
}

// Document is the complete emission payload handed to the Emitter.
// Built by the sale or return service after the number is reserved and
// persisted; the builder never reserves numbers itself.
type Document struct {
	Model    Model
	Series   int
	Number   int64
	IssuedAt time.Time

	// Environment: "production" or "homologation".
	Environment string

	// OperationNature is the natOp text ("VENDA", "DEVOLUCAO DE MERCADORIA").
	OperationNature string
	Finality        Finality

	Issuer    Issuer
	Recipient *Recipient

	Items    []Item
	Discount types.Money
	Total    types.Money
	Payments []PaymentEntry

	// RefAccessKey links a corrective (return) document to the access key
	// of the origin receipt.
	RefAccessKey string
}

// Validate checks the payload before submission.
func (d *Document) Validate() error {
	if d.Number <= 0 {
		return apperror.NewValidation("fiscal document requires a reserved number")
	}
	if d.Series <= 0 {
		return apperror.NewValidation("fiscal document requires a series")
	}
	if d.Model != ModelNFe && d.Model != ModelNFCe {
		return apperror.NewValidation("unknown fiscal document model").
			WithDetail("model", int(d.Model))
	}
	if len(d.Items) == 0 {
		return apperror.NewValidation("fiscal document has no items")
	}
	if d.Issuer.CNPJ == "" {
		return apperror.NewConfiguration("issuing company has no CNPJ configured")
	}
	if d.Finality == FinalityReturn && d.RefAccessKey == "" {
		return apperror.NewValidation("corrective document requires the origin access key")
	}
	return nil
}

// Result is the authority's answer to a submission.
//
// Transport-level failures are NOT a Result: Emit returns an error with
// code FISCAL_TRANSPORT_ERROR and the caller parks the document as
// pending, since the authority outcome is unknown.
type Result struct {
	Authorized bool

	// Set when authorized.
	AccessKey string
	Protocol  string
	Number    int64
	Series    int

	// Set when rejected.
	Reason string

	// Raw authority response, kept for audit.
	Raw []byte
}

// Emitter submits fiscal documents to the authority.
type Emitter interface {
	Emit(ctx context.Context, doc *Document) (*Result, error)
}

// IsTransportError reports whether the emission failed at the transport
// level (outcome unknown at the authority).
func IsTransportError(err error) bool {
	return apperror.IsCode(err, apperror.CodeFiscalTransport)
}
