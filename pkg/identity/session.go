package identity

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// SessionConfig is the TLS and timeout policy shared by every call to the
// identity service.
type SessionConfig struct {
	// Insecure disables certificate verification. It wins over CACertFile.
	Insecure bool
	// CACertFile is a PEM bundle used instead of the system roots
	CACertFile string
	Timeout    time.Duration
}

// NewSession builds the HTTP client used to reach the identity service
func NewSession(cfg SessionConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	switch {
	case cfg.Insecure:
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // operator opt-in
	case cfg.CACertFile != "":
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &http.Client{
		Transport: observability.InstrumentTransport(transport),
		Timeout:   cfg.Timeout,
	}, nil
}
