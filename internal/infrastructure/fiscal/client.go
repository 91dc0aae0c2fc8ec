package fiscal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"caixa/internal/core/apperror"
	fiscaldoc "caixa/internal/domain/fiscal"
	"caixa/pkg/config"
	"caixa/pkg/logger"
)

var tracer = otel.Tracer("caixa/fiscal")

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20 // 1 MB

	// statusAuthorized is the authority code for an accepted document.
	statusAuthorized = 100
)

// Client submits zipped document XML to the authority endpoint over
// HTTPS, authenticating with the company's A1 certificate. Implements
// fiscaldoc.Emitter.
//
// Transport failures surface as FISCAL_TRANSPORT_ERROR: the caller
// parks the document as pending because the authority outcome is
// unknown. A parsed rejection is a normal Result, not an error.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	environment string
	log         *logger.Logger
}

// NewClient builds the authority client from configuration. Loads the
// A1 certificate eagerly so a bad bundle fails at startup, not at the
// first sale.
func NewClient(cfg config.FiscalConfig, log *logger.Logger) (*Client, error) {
	cert, err := LoadCertificate(cfg.CertPath, cfg.CertPassword)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		},
		endpoint:    cfg.Endpoint(),
		environment: cfg.Environment,
		log:         log,
	}, nil
}

// authorityResponse is the processing receipt returned by the endpoint.
type authorityResponse struct {
	XMLName xml.Name `xml:"retEnviNFe"`
	Status  int      `xml:"cStat"`
	Reason  string   `xml:"xMotivo"`
	ProtNFe *struct {
		InfProt struct {
			Status    int    `xml:"cStat"`
			Reason    string `xml:"xMotivo"`
			AccessKey string `xml:"chNFe"`
			Protocol  string `xml:"nProt"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

// Emit submits the document and returns the authority's verdict.
func (c *Client) Emit(ctx context.Context, doc *fiscaldoc.Document) (*fiscaldoc.Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "fiscal.emit")
	defer span.End()
	span.SetAttributes(
		attribute.Int("fiscal.model", int(doc.Model)),
		attribute.Int("fiscal.series", doc.Series),
		attribute.Int64("fiscal.number", doc.Number),
		attribute.String("fiscal.environment", c.environment),
	)

	xmlBytes, err := fiscaldoc.BuildXML(doc)
	if err != nil {
		return nil, fmt.Errorf("build document xml: %w", err)
	}

	name := documentFilename(doc.Issuer.CNPJ, int(doc.Model), doc.Series, doc.Number)
	zipBytes, err := packageXML(xmlBytes, name)
	if err != nil {
		return nil, fmt.Errorf("package document: %w", err)
	}

	raw, err := c.submit(ctx, zipBytes)
	if err != nil {
		return nil, err
	}

	return c.parseResponse(doc, raw)
}

func (c *Client) submit(ctx context.Context, zipBytes []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewReader(zipBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.NewFiscalTransport("authority unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperror.NewFiscalTransport("read authority response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.NewFiscalTransport(
			fmt.Sprintf("authority returned HTTP %d", resp.StatusCode), nil).
			WithDetail("http_status", resp.StatusCode)
	}

	return raw, nil
}

func (c *Client) parseResponse(doc *fiscaldoc.Document, raw []byte) (*fiscaldoc.Result, error) {
	var resp authorityResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		// Unparseable body: the document may or may not have been
		// processed, so this stays a transport failure.
		return nil, apperror.NewFiscalTransport("unparseable authority response", err)
	}

	result := &fiscaldoc.Result{
		Number: doc.Number,
		Series: doc.Series,
		Raw:    raw,
	}

	if resp.ProtNFe != nil {
		prot := resp.ProtNFe.InfProt
		if prot.Status == statusAuthorized {
			result.Authorized = true
			result.AccessKey = prot.AccessKey
			result.Protocol = prot.Protocol
			c.log.Infow("fiscal document authorized",
				"number", doc.Number, "series", doc.Series, "access_key", prot.AccessKey)
			return result, nil
		}
		result.Reason = fmt.Sprintf("%d: %s", prot.Status, prot.Reason)
		c.log.Warnw("fiscal document rejected",
			"number", doc.Number, "series", doc.Series, "reason", result.Reason)
		return result, nil
	}

	// No protocol block: the batch itself was refused.
	result.Reason = fmt.Sprintf("%d: %s", resp.Status, resp.Reason)
	c.log.Warnw("fiscal submission refused",
		"number", doc.Number, "series", doc.Series, "reason", result.Reason)
	return result, nil
}

// Ensure interface compliance.
var _ fiscaldoc.Emitter = (*Client)(nil)
