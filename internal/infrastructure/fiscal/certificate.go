// Package fiscal implements the authority submission client behind the
// domain Emitter port.
package fiscal

import (
	"crypto/tls"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// LoadCertificate reads an A1 certificate bundle (.pfx/.p12) and builds
// the TLS client identity presented to the authority endpoint.
func LoadCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read certificate file: %w", err)
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pkcs12 bundle: %w", err)
	}
	if cert == nil {
		return tls.Certificate{}, fmt.Errorf("pkcs12 bundle has no certificate")
	}

	// tls.Certificate expects the leaf first, then the chain.
	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
