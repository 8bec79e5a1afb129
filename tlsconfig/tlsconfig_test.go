package tlsconfig

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// generateSelfSigned writes a combined certificate+key PEM file to dir and
// returns its path, for exercising Server/Client without a real CA.
func generateSelfSigned(t *testing.T, dir string) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("pem.Encode cert: %v", err)
	}
	if err := pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}); err != nil {
		t.Fatalf("pem.Encode key: %v", err)
	}

	path := filepath.Join(dir, "combined.pem")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestServerLoadsCombinedPEM(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := generateSelfSigned(t, dir)

	cfg, err := Server(path)
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected exactly one certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != MinVersion {
		t.Fatalf("expected MinVersion %d, got %d", MinVersion, cfg.MinVersion)
	}
}

func TestServerMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Server(filepath.Join(t.TempDir(), "nope.pem")); err == nil {
		t.Fatal("expected an error for a missing certificate file")
	}
}

func TestClientLoadsTrustAnchor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := generateSelfSigned(t, dir)

	cfg, err := Client(path, "localhost")
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("expected a non-nil RootCAs pool")
	}
	if cfg.ServerName != "localhost" {
		t.Fatalf("expected ServerName localhost, got %q", cfg.ServerName)
	}
}

func TestClientRejectsGarbageFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Client(path, "localhost"); err == nil {
		t.Fatal("expected an error loading a garbage trust anchor")
	}
}
