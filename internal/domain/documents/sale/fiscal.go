package sale

import (
	"time"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/cart"
	"caixa/internal/domain/catalogs/company"
	"caixa/internal/domain/catalogs/product"
	"caixa/internal/domain/fiscal"
)

// productlessCode is the item code stamped on product-less lines.
const productlessCode = "DIVERSOS"

// BuildFiscalDocument assembles the emission payload for a sale whose
// number is already reserved. The products map supplies codes and
// barcodes for catalog lines; product-less lines fall back to a generic
// code with the company's configured tax snapshot already frozen on the
// item.
func BuildFiscalDocument(s *Sale, co *company.Company, recipient *fiscal.Recipient, products map[id.ID]*product.Product) (*fiscal.Document, error) {
	if !s.Fiscal.HasReservedNumber() {
		return nil, apperror.NewValidation("sale has no reserved fiscal number").
			WithDetail("saleId", s.ID.String())
	}

	items := make([]fiscal.Item, 0, len(s.Items))
	for _, it := range s.Items {
		code := productlessCode
		barcode := ""
		if it.ProductID != nil {
			p, ok := products[*it.ProductID]
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
			Discount:    it.Discount,
			Total:       it.Total,
			Tax:         it.Tax,
		})
	}

	discount := s.OrderDiscountTotal
	if s.AdjustmentKind == cart.AdjustmentDiscount {
		discount = discount.Add(s.AdjustmentAmount)
	}

	issuedAt := time.Now()
	if s.Fiscal.IssuedAt != nil {
		issuedAt = *s.Fiscal.IssuedAt
	}

	doc := &fiscal.Document{
		Model:           s.Fiscal.Model,
		Series:          s.Fiscal.Series,
		Number:          s.Fiscal.Number,
		IssuedAt:        issuedAt,
		Environment:     string(co.Environment),
		OperationNature: "VENDA",
		Finality:        fiscal.FinalityNormal,
		Issuer:          co.Issuer(),
		Recipient:       recipient,
		Items:           items,
		Discount:        discount,
		Total:           s.GrandTotal,
		Payments:        PaymentEntries(s.Payment, s.GrandTotal),
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// PaymentEntries flattens the payment union into authority payment
// lines (code + amount).
func PaymentEntries(p cart.Payment, grandTotal types.Money) []fiscal.PaymentEntry {
	switch p.Kind {
	case cart.PaymentCash:
		return []fiscal.PaymentEntry{{
			Code:   fiscal.AuthorityPaymentCode(string(cart.MethodCash)),
			Amount: grandTotal,
		}}
	case cart.PaymentInstallment:
		return []fiscal.PaymentEntry{{
			Code:   fiscal.AuthorityPaymentCode(string(p.Installment.Method)),
			Amount: grandTotal,
		}}
	case cart.PaymentMixed:
		entries := make([]fiscal.PaymentEntry, 0, len(p.Mixed.Allocations))
		for _, a := range p.Mixed.Allocations {
			entries = append(entries, fiscal.PaymentEntry{
				Code:   fiscal.AuthorityPaymentCode(string(a.Method)),
				Amount: a.Amount,
			})
		}
		return entries
	default:
		return nil
	}
}
