// SPDX-License-Identifier: LGPL-3.0-or-later

package acmecrypto

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	jose "github.com/go-jose/go-jose/v3"
)

// JWK returns the public JWK for an RSA key pair.
func JWK(key *rsa.PrivateKey) *jose.JSONWebKey {
	return &jose.JSONWebKey{Key: &key.PublicKey}
}

// Thumbprint returns the base64url (no padding) SHA-256 RFC 7638 thumbprint
// of jwk. Canonicalization (lexicographic key ordering, no whitespace) is
// performed by go-jose, so re-ordering the fields of an equivalent JWK never
// changes the result.
func Thumbprint(jwk *jose.JSONWebKey) (string, error) {
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// KeyAuthorization derives the key authorization for a challenge token per
// RFC 8555 8.1: token || "." || base64url(thumbprint(jwk)).
func KeyAuthorization(token string, jwk *jose.JSONWebKey) (string, error) {
	thumb, err := Thumbprint(jwk)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}
