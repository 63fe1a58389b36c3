// Package tlsfactory implements the TLS listener factory collaborator:
// given a PKCS#12 keystore path and password, it builds a tls.Config that
// enforces TLS 1.3.
package tlsfactory

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"software.sslmate.com/src/go-pkcs12"
)

// Build loads a PKCS#12 keystore and returns a tls.Config enforcing
// TLSv1.3. Relative keystorePath resolves under certificatesPath;
// absolute paths are used verbatim. A missing keystore or wrong password
// returns an error, which the caller treats as a fatal bind failure for
// that listener.
func Build(keystorePath, keystorePassword, certificatesPath string) (*tls.Config, error) {
	path := keystorePath
	if !filepath.IsAbs(path) && certificatesPath != "" {
		path = filepath.Join(certificatesPath, keystorePath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore %s: %w", path, err)
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, keystorePassword)
	if err != nil {
		return nil, fmt.Errorf("decoding keystore %s: %w", path, err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
	}
	for _, ca := range caCerts {
		tlsCert.Certificate = append(tlsCert.Certificate, ca.Raw)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
	}, nil
}
