// Package internaltls loads and generates the certificates used for mutual
// TLS between StrataDB servers and clients.
package internaltls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Files names the PEM files of one side of a connection.
type Files struct {
	CA   string
	Cert string
	Key  string
}

// Enabled reports whether any file is set.
func (f Files) Enabled() bool {
	return f.CA != "" || f.Cert != "" || f.Key != ""
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert from %s to pool", path)
	}
	return pool, nil
}

// LoadServerConfig loads the server's certificate and key and the CA cert.
// Clients must present a certificate signed by the CA.
func LoadServerConfig(files Files) (*tls.Config, error) {
	serverCert, err := tls.LoadX509KeyPair(files.Cert, files.Key)
	if err != nil {
		return nil, fmt.Errorf("could not load server key pair: %w", err)
	}
	pool, err := loadCAPool(files.CA)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadClientConfig loads the client's certificate and key and the CA cert
// that signed the server certificate. serverName overrides the name checked
// against the server certificate; empty uses the dialed host.
func LoadClientConfig(files Files, serverName string) (*tls.Config, error) {
	clientCert, err := tls.LoadX509KeyPair(files.Cert, files.Key)
	if err != nil {
		return nil, fmt.Errorf("could not load client key pair: %w", err)
	}
	pool, err := loadCAPool(files.CA)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
