/*
Package certtest mints throwaway TLS credentials for tests that exercise
the mutual-TLS transport.

It writes the two files the runtime configuration expects: a combined
cert+key PEM (--certfile) and a CA PEM (--cafile). The certificate is its
own CA and carries both server and client usages plus a 127.0.0.1 IP SAN,
so one pair of files serves both sides of a loopback handshake.
*/
package certtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WriteCredentials generates a self-signed certificate and returns the
// path to a combined cert+key PEM and to a CA PEM.
func WriteCredentials(t *testing.T) (certFile, caFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "chat.example.com"},
		DNSNames:              []string{"chat.example.com"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "client.pem")
	caFile = filepath.Join(dir, "rootCA.pem")
	require.NoError(t, os.WriteFile(certFile, append(certPEM, keyPEM...), 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return certFile, caFile
}
