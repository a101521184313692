package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// buildTLSConfig loads the server key pair and the client CA pool.  Client
// certificates are requested during the handshake but verified by withAuth,
// so a missing or untrusted certificate gets a 401 instead of a failed
// handshake.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, *x509.CertPool, error) {
	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, nil, fmt.Errorf("parse CA %s: no certificates found", cfg.CAFile)
	}
	cert, err := loadKeyPair(cfg.CertFile, cfg.KeyFile, cfg.KeyPassphrase)
	if err != nil {
		return nil, nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequestClientCert,
		MinVersion:   tls.VersionTLS12,
	}, pool, nil
}

// loadKeyPair reads a PEM certificate and private key.  The key may be
// encrypted, either as PKCS#8 "ENCRYPTED PRIVATE KEY" (PBES2 with PBKDF2 or
// scrypt, AES or 3DES, as written by openssl pkcs8 -topk8) or as a legacy
// Proc-Type encrypted PEM block.
func loadKeyPair(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read server certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read server key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("server key %s: no PEM data", keyFile)
	}
	switch {
	case block.Type == "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return tls.Certificate{}, fmt.Errorf("server key %s is encrypted but no passphrase was given", keyFile)
		}
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decrypt server key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decrypt server key: %w", err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	case x509.IsEncryptedPEMBlock(block): //nolint:staticcheck // legacy keys are still in the field
		if passphrase == "" {
			return tls.Certificate{}, fmt.Errorf("server key %s is encrypted but no passphrase was given", keyFile)
		}
		der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decrypt server key: %w", err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load server key pair: %w", err)
	}
	return cert, nil
}

