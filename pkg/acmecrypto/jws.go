// SPDX-License-Identifier: LGPL-3.0-or-later

package acmecrypto

import (
	"crypto/rsa"
	"fmt"

	jose "github.com/go-jose/go-jose/v3"
)

// staticNonceSource hands out a single pre-fetched nonce, satisfying
// go-jose's jose.NonceSource so the signer can embed it in the protected
// header the same way lego's jws helper does.
type staticNonceSource string

func (s staticNonceSource) Nonce() (string, error) {
	return string(s), nil
}

// Sign assembles a flattened JWS over payload. When kid is empty, the
// protected header embeds the account JWK (jwk form, used pre-account and
// for certificate-key revocation); otherwise it carries kid instead. payload
// may be empty ([]byte{}) to produce a POST-as-GET request, whose payload
// field must serialize as the empty string, not "{}".
func Sign(payload []byte, key *rsa.PrivateKey, nonce, url, kid string) ([]byte, error) {
	opts := &jose.SignerOptions{NonceSource: staticNonceSource(nonce)}
	opts.WithHeader("url", url)
	if kid == "" {
		opts.EmbedJWK = true
	} else {
		opts.EmbedJWK = false
		opts.WithHeader("kid", kid)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, opts)
	if err != nil {
		return nil, fmt.Errorf("build jws signer: %w", err)
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign jws: %w", err)
	}
	return []byte(signed.FullSerialize()), nil
}

// SignEAB produces the nested JWS required for External Account Binding: a
// JWS over the account JWK, protected header {alg: HS256, kid: eabKeyID,
// url}, HMAC-SHA256 signed with macKey.
func SignEAB(accountJWK *jose.JSONWebKey, macKey []byte, eabKeyID, url string) ([]byte, error) {
	payload, err := accountJWK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal account jwk: %w", err)
	}

	opts := &jose.SignerOptions{}
	opts.WithHeader("url", url)
	opts.WithHeader("kid", eabKeyID)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: macKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("build eab signer: %w", err)
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign eab jws: %w", err)
	}
	return []byte(signed.FullSerialize()), nil
}
