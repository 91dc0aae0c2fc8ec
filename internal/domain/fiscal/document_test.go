package fiscal

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	"caixa/internal/core/types"
)

func sampleDocument() *Document {
	return &Document{
		Model:           ModelNFCe,
		Series:          3,
		Number:          142,
		IssuedAt:        time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC),
		Environment:     "homologation",
		OperationNature: "VENDA",
		Finality:        FinalityNormal,
		Issuer: Issuer{
			CNPJ:              "12345678000195",
			Name:              "Padaria Central LTDA",
			StateRegistration: "123456789",
			CRT:               "1",
			CityCode:          "3550308",
			StateCode:         "35",
		},
		Items: []Item{
			{
				Code:        "P001",
				Description: "Pao frances",
				Quantity:    types.NewQuantityFromInt(10),
				UnitPrice:   types.MustMoney("0.80"),
				Total:       types.MustMoney("8.00"),
				Tax: TaxSnapshot{
					NCM:    "19059090",
					CFOP:   "5102",
					Origin: "0",
					CSOSN:  "102",
				},
			},
		},
		Total: types.MustMoney("8.00"),
		Payments: []PaymentEntry{
			{Code: "01", Amount: types.MustMoney("8.00")},
		},
	}
}

func parse(t *testing.T, data []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	return doc
}

func findText(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.FindElement(path)
	require.NotNil(t, el, "element %s not found", path)
	return el.Text()
}

func TestBuildXML_Fields(t *testing.T) {
	data, err := BuildXML(sampleDocument())
	require.NoError(t, err)

	doc := parse(t, data)

	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "enviNFe", root.Tag, "payload is a submission batch")
	assert.Equal(t, "4.00", root.SelectAttrValue("versao", ""))

	assert.Equal(t, "35", findText(t, doc, "//infNFe/ide/cUF"))
	assert.Equal(t, "65", findText(t, doc, "//infNFe/ide/mod"))
	assert.Equal(t, "3", findText(t, doc, "//infNFe/ide/serie"))
	assert.Equal(t, "142", findText(t, doc, "//infNFe/ide/nNF"))
	assert.Equal(t, "2", findText(t, doc, "//infNFe/ide/tpAmb"), "homologation maps to tpAmb 2")
	assert.Equal(t, "1", findText(t, doc, "//infNFe/ide/finNFe"))
	assert.Equal(t, "12345678000195", findText(t, doc, "//infNFe/emit/CNPJ"))
	assert.Equal(t, "19059090", findText(t, doc, "//det/prod/NCM"))
	assert.Equal(t, "5102", findText(t, doc, "//det/prod/CFOP"))
	assert.Equal(t, "8.00", findText(t, doc, "//det/prod/vProd"))
	assert.Equal(t, "102", findText(t, doc, "//det/imposto/ICMS/ICMSSN102/CSOSN"),
		"Simples Nacional issuer carries CSOSN")
	assert.Equal(t, "8.00", findText(t, doc, "//total/ICMSTot/vNF"))
	assert.Equal(t, "01", findText(t, doc, "//pag/detPag/tPag"))

	assert.Nil(t, doc.FindElement("//ide/NFref"), "normal sale has no document reference")
	assert.Nil(t, doc.FindElement("//infNFe/dest"), "anonymous consumer omits dest")
}

func TestBuildXML_NormalRegimeICMS(t *testing.T) {
	d := sampleDocument()
	d.Items[0].Tax.CSOSN = ""
	d.Items[0].Tax.CSTICMS = "00"
	d.Items[0].Tax.ICMSRate = types.MustMoney("18")

	data, err := BuildXML(d)
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, "00", findText(t, doc, "//ICMS/ICMS00/CST"))
	assert.Equal(t, "18.00", findText(t, doc, "//ICMS/ICMS00/pICMS"))
	assert.Equal(t, "1.44", findText(t, doc, "//ICMS/ICMS00/vICMS"))
}

func TestBuildXML_CorrectiveReferencesOrigin(t *testing.T) {
	d := sampleDocument()
	d.Model = ModelNFe
	d.Finality = FinalityReturn
	d.OperationNature = "DEVOLUCAO DE MERCADORIA"
	d.RefAccessKey = "35260812345678000195550030000001421000001429"

	data, err := BuildXML(d)
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, d.RefAccessKey, findText(t, doc, "//ide/NFref/refNFe"))
	assert.Equal(t, "4", findText(t, doc, "//ide/finNFe"))
}

func TestBuildXML_Validation(t *testing.T) {
	noNumber := sampleDocument()
	noNumber.Number = 0

	noItems := sampleDocument()
	noItems.Items = nil

	correctiveNoRef := sampleDocument()
	correctiveNoRef.Finality = FinalityReturn

	for name, d := range map[string]*Document{
		"missing number":            noNumber,
		"no items":                  noItems,
		"corrective without origin": correctiveNoRef,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildXML(d)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)
		})
	}

	noCNPJ := sampleDocument()
	noCNPJ.Issuer.CNPJ = ""
	_, err := BuildXML(noCNPJ)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
}

func TestBuildXML_StripsTaxIDFormatting(t *testing.T) {
	d := sampleDocument()
	d.Issuer.CNPJ = "12.345.678/0001-95"
	d.Recipient = &Recipient{TaxID: "123.456.789-09", Name: "Maria"}

	data, err := BuildXML(d)
	require.NoError(t, err)

	doc := parse(t, data)
	assert.Equal(t, "12345678000195", findText(t, doc, "//infNFe/emit/CNPJ"))
	assert.Equal(t, "12345678909", findText(t, doc, "//infNFe/dest/CPF"))
	assert.Nil(t, doc.FindElement("//infNFe/dest/CNPJ"))

	d.Recipient = &Recipient{TaxID: "12.345.678/0001-90"}
	data, err = BuildXML(d)
	require.NoError(t, err)

	doc = parse(t, data)
	assert.Equal(t, "12345678000190", findText(t, doc, "//infNFe/dest/CNPJ"))
	assert.Nil(t, doc.FindElement("//infNFe/dest/CPF"))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusAuthorized.IsTerminal())
	assert.True(t, StatusNotApplicable.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())

	assert.True(t, StatusPending.NeedsAttention())
	assert.True(t, StatusRejected.NeedsAttention())
	assert.False(t, StatusAuthorized.NeedsAttention())
}

func TestAuthorityPaymentCode(t *testing.T) {
	assert.Equal(t, "01", AuthorityPaymentCode("cash"))
	assert.Equal(t, "17", AuthorityPaymentCode("pix"))
	assert.Equal(t, "99", AuthorityPaymentCode("carrier-pigeon"))
}
