package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
)

type serverFiles struct {
	dir, cert, ca string
	keyDER        []byte
}

func newServerFiles(t *testing.T) serverFiles {
	t.Helper()
	dir := t.TempDir()
	ca := newTestPKI(t, "agent-ca")
	_, key, certPEM := ca.issue(t, "pi.local", x509.ExtKeyUsageServerAuth)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return serverFiles{
		dir:    dir,
		cert:   writeFile(t, dir, "server.crt", certPEM),
		ca:     writeFile(t, dir, "ca.crt", ca.pem),
		keyDER: der,
	}
}

func TestBuildTLSConfigPlainKey(t *testing.T) {
	f := newServerFiles(t)
	keyFile := writeFile(t, f.dir, "server.key", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: f.keyDER}))

	cfg, pool, err := buildTLSConfig(TLSConfig{CertFile: f.cert, KeyFile: keyFile, CAFile: f.ca})
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, tls.RequestClientCert, cfg.ClientAuth)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestLoadKeyPairEncryptedPKCS8(t *testing.T) {
	pbkdf2SHA256 := pkcs8.PBKDF2Opts{SaltSize: 16, IterationCount: 2048, HMACHash: crypto.SHA256}
	pbkdf2SHA1 := pkcs8.PBKDF2Opts{SaltSize: 8, IterationCount: 2048, HMACHash: crypto.SHA1}
	tests := []struct {
		name string
		opts *pkcs8.Opts
	}{
		{"aes-256-cbc pbkdf2", &pkcs8.Opts{Cipher: pkcs8.AES256CBC, KDFOpts: pbkdf2SHA256}},
		{"aes-128-cbc pbkdf2 sha1", &pkcs8.Opts{Cipher: pkcs8.AES128CBC, KDFOpts: pbkdf2SHA1}},
		{"des3 pbkdf2 sha1", &pkcs8.Opts{Cipher: pkcs8.TripleDESCBC, KDFOpts: pbkdf2SHA1}},
		{"aes-256-gcm pbkdf2", &pkcs8.Opts{Cipher: pkcs8.AES256GCM, KDFOpts: pbkdf2SHA256}},
		{"aes-256-cbc scrypt", &pkcs8.Opts{Cipher: pkcs8.AES256CBC, KDFOpts: pkcs8.ScryptOpts{
			SaltSize: 16, CostParameter: 1024, BlockSize: 8, ParallelizationParameter: 1,
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFiles(t)
			enc := encryptPKCS8(t, f.keyDER, []byte("correct horse"), tt.opts)
			keyFile := writeFile(t, f.dir, "server.key", pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: enc}))

			_, err := loadKeyPair(f.cert, keyFile, "correct horse")
			require.NoError(t, err)

			_, err = loadKeyPair(f.cert, keyFile, "battery staple")
			assert.Error(t, err)

			_, err = loadKeyPair(f.cert, keyFile, "")
			assert.ErrorContains(t, err, "no passphrase")
		})
	}
}

func TestLoadKeyPairLegacyEncryptedPEM(t *testing.T) {
	f := newServerFiles(t)
	key, err := x509.ParsePKCS8PrivateKey(f.keyDER)
	require.NoError(t, err)
	ecDER, err := x509.MarshalECPrivateKey(key.(*ecdsa.PrivateKey))
	require.NoError(t, err)
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", ecDER, []byte("pp"), x509.PEMCipherAES256) //nolint:staticcheck
	require.NoError(t, err)
	keyFile := writeFile(t, f.dir, "server.key", pem.EncodeToMemory(block))

	_, err = loadKeyPair(f.cert, keyFile, "pp")
	require.NoError(t, err)
	_, err = loadKeyPair(f.cert, keyFile, "")
	assert.Error(t, err)
}

func TestBuildTLSConfigErrors(t *testing.T) {
	f := newServerFiles(t)
	keyFile := writeFile(t, f.dir, "server.key", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: f.keyDER}))
	notPEM := writeFile(t, f.dir, "garbage.pem", []byte("not a certificate"))

	_, _, err := buildTLSConfig(TLSConfig{CertFile: f.cert, KeyFile: keyFile, CAFile: notPEM})
	assert.ErrorContains(t, err, "no certificates")

	_, _, err = buildTLSConfig(TLSConfig{CertFile: f.cert, KeyFile: notPEM, CAFile: f.ca})
	assert.ErrorContains(t, err, "no PEM data")

	_, _, err = buildTLSConfig(TLSConfig{CertFile: f.cert, KeyFile: keyFile, CAFile: f.dir + "/missing.pem"})
	assert.Error(t, err)
}

func TestVerifyClient(t *testing.T) {
	ca := newTestPKI(t, "agent-ca")
	other := newTestPKI(t, "someone-else")
	client, _, _ := ca.issue(t, "ops-laptop", x509.ExtKeyUsageClientAuth)
	serverOnly, _, _ := ca.issue(t, "pi.local", x509.ExtKeyUsageServerAuth)
	stranger, _, _ := other.issue(t, "intruder", x509.ExtKeyUsageClientAuth)

	tests := []struct {
		name  string
		state *tls.ConnectionState
		want  string
		ok    bool
	}{
		{"trusted client", &tls.ConnectionState{PeerCertificates: []*x509.Certificate{client}}, "ops-laptop", true},
		{"no tls", nil, "", false},
		{"no certificate", &tls.ConnectionState{}, "", false},
		{"other CA", &tls.ConnectionState{PeerCertificates: []*x509.Certificate{stranger}}, "", false},
		{"server certificate", &tls.ConnectionState{PeerCertificates: []*x509.Certificate{serverOnly}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/agent/config", nil)
			r.TLS = tt.state
			name, ok := verifyClient(r, ca.pool)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, name)
		})
	}
}
