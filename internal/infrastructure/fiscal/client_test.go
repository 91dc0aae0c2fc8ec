package fiscal

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caixa/internal/core/apperror"
	"caixa/internal/core/types"
	fiscaldoc "caixa/internal/domain/fiscal"
	"caixa/pkg/logger"
)

func testClient(endpoint string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		endpoint:    endpoint,
		environment: "homologation",
		log:         &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
	}
}

func testDocument() *fiscaldoc.Document {
	return &fiscaldoc.Document{
		Model:           fiscaldoc.ModelNFCe,
		Series:          3,
		Number:          42,
		IssuedAt:        time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC),
		Environment:     "homologation",
		OperationNature: "VENDA",
		Finality:        fiscaldoc.FinalityNormal,
		Issuer: fiscaldoc.Issuer{
			CNPJ:              "12.345.678/0001-90",
			Name:              "Padaria Central LTDA",
			TradeName:         "Padaria Central",
			StateRegistration: "1234567890",
			CRT:               "1",
			CityCode:          "3550308",
			StateCode:         "35",
		},
		Items: []fiscaldoc.Item{
			{
				Code:        "P-A",
				Barcode:     "7891234567890",
				Description: "Pao frances",
				Quantity:    types.NewQuantityFromInt(2),
				UnitPrice:   types.MustMoney("5.00"),
				Total:       types.MustMoney("10.00"),
				Tax: fiscaldoc.TaxSnapshot{
					NCM:    "19059090",
					CFOP:   "5102",
					Origin: "0",
					CSOSN:  "102",
				},
			},
		},
		Total: types.MustMoney("10.00"),
		Payments: []fiscaldoc.PaymentEntry{
			{Code: "01", Amount: types.MustMoney("10.00")},
		},
	}
}

const authorizedResponse = `<?xml version="1.0" encoding="UTF-8"?>
<retEnviNFe versao="4.00">
  <cStat>104</cStat>
  <xMotivo>Lote processado</xMotivo>
  <protNFe>
    <infProt>
      <cStat>100</cStat>
      <xMotivo>Autorizado o uso da NF-e</xMotivo>
      <chNFe>35260512345678000190650030000000421000000010</chNFe>
      <nProt>135260000000001</nProt>
    </infProt>
  </protNFe>
</retEnviNFe>`

const rejectedResponse = `<?xml version="1.0" encoding="UTF-8"?>
<retEnviNFe versao="4.00">
  <cStat>104</cStat>
  <xMotivo>Lote processado</xMotivo>
  <protNFe>
    <infProt>
      <cStat>539</cStat>
      <xMotivo>Duplicidade de NF-e</xMotivo>
    </infProt>
  </protNFe>
</retEnviNFe>`

const batchRefusedResponse = `<?xml version="1.0" encoding="UTF-8"?>
<retEnviNFe versao="4.00">
  <cStat>225</cStat>
  <xMotivo>Falha no Schema XML</xMotivo>
</retEnviNFe>`

func TestEmit_Authorized(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(authorizedResponse))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result, err := client.Emit(context.Background(), testDocument())
	require.NoError(t, err)

	assert.True(t, result.Authorized)
	assert.Equal(t, "35260512345678000190650030000000421000000010", result.AccessKey)
	assert.Equal(t, "135260000000001", result.Protocol)
	assert.Equal(t, int64(42), result.Number)
	assert.Equal(t, 3, result.Series)
	assert.NotEmpty(t, result.Raw)

	assert.Equal(t, "application/zip", gotContentType)

	// The body must be a zip with a single XML entry.
	zr, err := zip.NewReader(bytes.NewReader(gotBody), int64(len(gotBody)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "12345678000190-65-3-42.xml", zr.File[0].Name)
}

func TestEmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rejectedResponse))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Emit(context.Background(), testDocument())
	require.NoError(t, err)

	assert.False(t, result.Authorized)
	assert.Contains(t, result.Reason, "539")
	assert.Contains(t, result.Reason, "Duplicidade")
	assert.Empty(t, result.AccessKey)
}

func TestEmit_BatchRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(batchRefusedResponse))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Emit(context.Background(), testDocument())
	require.NoError(t, err)

	assert.False(t, result.Authorized)
	assert.Contains(t, result.Reason, "225")
}

func TestEmit_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Emit(context.Background(), testDocument())
	require.Error(t, err)
	assert.True(t, fiscaldoc.IsTransportError(err))
}

func TestEmit_UnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := testClient(srv.URL).Emit(context.Background(), testDocument())
	require.Error(t, err)
	assert.True(t, fiscaldoc.IsTransportError(err))
}

func TestEmit_UnparseableResponseIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Emit(context.Background(), testDocument())
	require.Error(t, err)
	assert.True(t, fiscaldoc.IsTransportError(err))
}

func TestEmit_ValidatesBeforeSubmission(t *testing.T) {
	doc := testDocument()
	doc.Number = 0

	_, err := testClient("http://127.0.0.1:1").Emit(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestPackageXML_Roundtrip(t *testing.T) {
	payload := []byte("<NFe>conteudo</NFe>")

	zipped, err := packageXML(payload, "doc.xml")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "doc.xml", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
