// SPDX-License-Identifier: LGPL-3.0-or-later

package acmecrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// AccountKeyBits is the RSA modulus size used for account keys.
const AccountKeyBits = 2048

// DefaultDomainKeyBits is the RSA modulus size used for domain keys when the
// caller doesn't request a specific size.
const DefaultDomainKeyBits = 4096

// GenerateAccountKey creates a new RSA account key.
func GenerateAccountKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, AccountKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	return key, nil
}

// GenerateDomainKey creates a new RSA domain key. bits defaults to
// DefaultDomainKeyBits when 0.
func GenerateDomainKey(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultDomainKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate domain key: %w", err)
	}
	return key, nil
}

// EncodeKeyPEM serializes an RSA private key as PKCS#8 PEM.
func EncodeKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}

// DecodeKeyPEM parses a PKCS#8 or PKCS#1 PEM-encoded RSA private key.
func DecodeKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("decode private key: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an RSA key")
	}
	return rsaKey, nil
}

// BuildCSR builds a PKCS#10 certificate signing request for domain, signed
// with key, and returns it PEM encoded. The request carries commonName=domain
// and a subjectAltName of DNS:domain.
func BuildCSR(domain string, key *rsa.PrivateKey) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: domain},
		DNSNames:           []string{domain},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("create csr: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE REQUEST",
		Bytes: der,
	}), nil
}

// CSRDER decodes a PEM-encoded CSR (as produced by BuildCSR) to its raw DER
// bytes, the form the ACME finalize request expects base64url-encoded.
func CSRDER(csrPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("decode csr: no CERTIFICATE REQUEST PEM block found")
	}
	return block.Bytes, nil
}

// BuildSelfSigned builds a transient self-signed certificate for domain,
// valid for the given duration. It is intended for callers assembling a
// tls-alpn-01 fulfiller that needs something to staple before the real
// certificate is issued.
func BuildSelfSigned(domain string, key *rsa.PrivateKey, validity time.Duration) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: domain},
		DNSNames:              []string{domain},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create self-signed certificate: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	}), nil
}
