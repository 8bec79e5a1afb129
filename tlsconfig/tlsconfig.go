// Package tlsconfig loads the server certificate chain and the client trust
// anchor and vends the shared *tls.Config both listeners/dials use.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// MinVersion is the floor enforced on both ends of every TLS handshake this
// service performs.
const MinVersion = tls.VersionTLS12

// Server loads a PEM file containing both the server certificate chain and
// its private key (a single combined file, the common layout for small
// standalone TLS services) and returns a tls.Config ready to wrap a
// listener.
func Server(certFile string) (*tls.Config, error) {
	pemBytes, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read certificate file %q: %w", certFile, err)
	}

	cert, err := tls.X509KeyPair(pemBytes, pemBytes)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: parse certificate chain %q: %w", certFile, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   MinVersion,
	}, nil
}

// Client loads a PEM trust anchor and returns a tls.Config that validates
// the server's certificate against it.
func Client(trustFile, serverName string) (*tls.Config, error) {
	pemBytes, err := os.ReadFile(trustFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read trust anchor %q: %w", trustFile, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("tlsconfig: no certificates found in trust anchor %q", trustFile)
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: MinVersion,
	}, nil
}
