// SPDX-License-Identifier: LGPL-3.0-or-later

package acmecrypto

import (
	"testing"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbprint_StableAcrossFieldOrder(t *testing.T) {
	key, err := GenerateAccountKey()
	require.NoError(t, err)

	jwk := JWK(key)
	a, err := Thumbprint(jwk)
	require.NoError(t, err)

	// A freshly constructed JWK wrapping the same public key must yield the
	// same thumbprint regardless of how go-jose orders its internal
	// representation - canonicalization is the library's job, not ours.
	again := &jose.JSONWebKey{Key: jwk.Key}
	b, err := Thumbprint(again)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestKeyAuthorization_Length(t *testing.T) {
	key, err := GenerateAccountKey()
	require.NoError(t, err)
	jwk := JWK(key)

	const token = "DGyRejmCefe7v4NfDGDKfA"
	ka, err := KeyAuthorization(token, jwk)
	require.NoError(t, err)

	assert.True(t, len(ka) == len(token)+1+43)
	assert.Equal(t, token+".", ka[:len(token)+1])
}
