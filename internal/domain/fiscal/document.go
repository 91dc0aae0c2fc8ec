package fiscal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"caixa/internal/core/types"
)

const (
	nfeNamespace  = "http://www.portalfiscal.inf.br/nfe"
	layoutVersion = "4.00"
)

var nonDigit = regexp.MustCompile(`[^0-9]`)

// AuthorityPaymentCode maps an internal payment method to the code the
// authority expects in detPag/tPag.
func AuthorityPaymentCode(method string) string {
	switch method {
	case "cash":
		return "01"
	case "credit-card":
		return "03"
	case "debit-card":
		return "04"
	case "store-credit":
		return "05"
	case "pix":
		return "17"
	default:
		return "99"
	}
}

// BuildXML renders the emission payload as an NF-e layout 4.00 batch:
// an enviNFe envelope around the document. Tax values come frozen in
// the item snapshots; nothing is computed here beyond the per-line tax
// amounts. Signing happens in the infrastructure client.
func BuildXML(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	x := etree.NewDocument()
	x.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	envi := x.CreateElement("enviNFe")
	envi.CreateAttr("xmlns", nfeNamespace)
	envi.CreateAttr("versao", layoutVersion)

	nfe := envi.CreateElement("NFe")
	inf := nfe.CreateElement("infNFe")
	inf.CreateAttr("versao", layoutVersion)

	buildIde(inf, doc)
	buildIssuer(inf, doc.Issuer)
	buildRecipient(inf, doc.Recipient)

	for i, item := range doc.Items {
		buildItem(inf, i+1, item)
	}

	buildTotals(inf, doc)
	buildPayments(inf, doc.Payments)

	x.Indent(2)
	out, err := x.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return out, nil
}

func buildIde(inf *etree.Element, doc *Document) {
	ide := inf.CreateElement("ide")
	text(ide, "cUF", doc.Issuer.StateCode)
	text(ide, "natOp", doc.OperationNature)
	text(ide, "mod", strconv.Itoa(int(doc.Model)))
	text(ide, "serie", strconv.Itoa(doc.Series))
	text(ide, "nNF", strconv.FormatInt(doc.Number, 10))
	text(ide, "dhEmi", doc.IssuedAt.Format(time.RFC3339))
	text(ide, "cMunFG", doc.Issuer.CityCode)
	text(ide, "tpAmb", environmentCode(doc.Environment))
	text(ide, "finNFe", strconv.Itoa(int(doc.Finality)))

	// Corrective documents reference the origin receipt.
	if doc.RefAccessKey != "" {
		ref := ide.CreateElement("NFref")
		text(ref, "refNFe", doc.RefAccessKey)
	}
}

func buildIssuer(inf *etree.Element, issuer Issuer) {
	emit := inf.CreateElement("emit")
	text(emit, "CNPJ", nonDigit.ReplaceAllString(issuer.CNPJ, ""))
	text(emit, "xNome", issuer.Name)
	if issuer.TradeName != "" {
		text(emit, "xFant", issuer.TradeName)
	}
	text(emit, "IE", issuer.StateRegistration)
	text(emit, "CRT", issuer.CRT)
}

func buildRecipient(inf *etree.Element, r *Recipient) {
	if r == nil || r.TaxID == "" {
		return
	}
	dest := inf.CreateElement("dest")
	taxID := nonDigit.ReplaceAllString(r.TaxID, "")
	if len(taxID) == 11 {
		text(dest, "CPF", taxID)
	} else {
		text(dest, "CNPJ", taxID)
	}
	if r.Name != "" {
		text(dest, "xNome", r.Name)
	}
}

func buildItem(inf *etree.Element, n int, item Item) {
	det := inf.CreateElement("det")
	det.CreateAttr("nItem", strconv.Itoa(n))

	prod := det.CreateElement("prod")
	code := item.Code
	if code == "" {
		code = strconv.Itoa(n)
	}
	barcode := item.Barcode
	if barcode == "" {
		barcode = "SEM GTIN"
	}
	text(prod, "cProd", code)
	text(prod, "cEAN", barcode)
	text(prod, "xProd", item.Description)
	text(prod, "NCM", item.Tax.NCM)
	if item.Tax.CEST != "" {
		text(prod, "CEST", item.Tax.CEST)
	}
	text(prod, "CFOP", item.Tax.CFOP)
	text(prod, "uCom", "UN")
	text(prod, "qCom", item.Quantity.String())
	text(prod, "vUnCom", money(item.UnitPrice))
	text(prod, "vProd", money(item.Total))
	if item.Discount.IsPositive() {
		text(prod, "vDesc", money(item.Discount))
	}
	text(prod, "indTot", "1")

	imposto := det.CreateElement("imposto")
	buildICMS(imposto, item)
	buildPISCOFINS(imposto, item)
}

func buildICMS(imposto *etree.Element, item Item) {
	icms := imposto.CreateElement("ICMS")

	// Simples Nacional issuers carry CSOSN, normal regime carries CST.
	if item.Tax.CSOSN != "" {
		group := icms.CreateElement("ICMSSN102")
		text(group, "orig", item.Tax.Origin)
		text(group, "CSOSN", item.Tax.CSOSN)
		return
	}

	group := icms.CreateElement("ICMS00")
	text(group, "orig", item.Tax.Origin)
	text(group, "CST", item.Tax.CSTICMS)
	text(group, "modBC", "3")
	text(group, "vBC", money(item.Total))
	text(group, "pICMS", rate(item.Tax.ICMSRate))
	text(group, "vICMS", money(item.Total.Mul(item.Tax.ICMSRate).Div(hundred)))
}

func buildPISCOFINS(imposto *etree.Element, item Item) {
	pis := imposto.CreateElement("PIS")
	if item.Tax.PISRate.IsPositive() {
		group := pis.CreateElement("PISAliq")
		text(group, "CST", item.Tax.CSTPIS)
		text(group, "vBC", money(item.Total))
		text(group, "pPIS", rate(item.Tax.PISRate))
		text(group, "vPIS", money(item.Total.Mul(item.Tax.PISRate).Div(hundred)))
	} else {
		group := pis.CreateElement("PISNT")
		text(group, "CST", item.Tax.CSTPIS)
	}

	cofins := imposto.CreateElement("COFINS")
	if item.Tax.COFINSRate.IsPositive() {
		group := cofins.CreateElement("COFINSAliq")
		text(group, "CST", item.Tax.CSTCOFINS)
		text(group, "vBC", money(item.Total))
		text(group, "pCOFINS", rate(item.Tax.COFINSRate))
		text(group, "vCOFINS", money(item.Total.Mul(item.Tax.COFINSRate).Div(hundred)))
	} else {
		group := cofins.CreateElement("COFINSNT")
		text(group, "CST", item.Tax.CSTCOFINS)
	}
}

func buildTotals(inf *etree.Element, doc *Document) {
	gross := types.Zero()
	for _, item := range doc.Items {
		gross = gross.Add(item.Total)
	}

	total := inf.CreateElement("total")
	icmsTot := total.CreateElement("ICMSTot")
	text(icmsTot, "vProd", money(gross))
	text(icmsTot, "vDesc", money(doc.Discount))
	text(icmsTot, "vNF", money(doc.Total))
}

func buildPayments(inf *etree.Element, payments []PaymentEntry) {
	pag := inf.CreateElement("pag")
	for _, p := range payments {
		det := pag.CreateElement("detPag")
		text(det, "tPag", p.Code)
		text(det, "vPag", money(p.Amount))
	}
}

func environmentCode(env string) string {
	if env == "production" {
		return "1"
	}
	return "2"
}

var hundred = types.NewMoney(100)

func text(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}

func money(m types.Money) string {
	return m.StringFixed(2)
}

func rate(r types.Money) string {
	return r.StringFixed(2)
}
